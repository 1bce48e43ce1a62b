package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKind — ресурс с таким именем не зарегистрирован.
var ErrUnknownKind = errors.New("неизвестный тип ресурса")

// Kind — тип ресурса; совпадает с префиксом пути backend.
type Kind string

const (
	Drivers     Kind = "drivers"
	Vehicles    Kind = "vehicles"
	Supervisors Kind = "supervisors"
	Attendees   Kind = "attendees"
	Groups      Kind = "groups"
	Tickets     Kind = "tickets"
)

// Effect — изменение коллекции в памяти после успешного действия.
type Effect int

const (
	// EffectRemove удаляет запись из коллекции.
	EffectRemove Effect = iota
	// EffectPatch присваивает полю PatchField значение PatchValue.
	EffectPatch
)

// Action — действие над строкой списка (POST /<kind>/<name>/{id}).
type Action struct {
	Name       string
	Label      string
	Confirm    string
	Effect     Effect
	PatchField string
	PatchValue any
}

// Column — колонка списка и экспорта.
type Column struct {
	Field string
	Label string
}

// Definition — описание ресурса.
type Definition struct {
	Kind  Kind
	Title string
	// Singular — название одной записи для заголовков форм.
	Singular string

	ListPath   string
	CreatePath string
	// UpdatePath содержит {id}.
	UpdatePath string
	// DateRange — список поддерживает start_date/end_date.
	DateRange bool

	SearchFields   []string
	Columns        []Column
	ExportExcluded []string
	DocumentFields []string

	Form    Schema
	Actions []Action
}

// ActionPath возвращает путь действия для записи id.
func (d *Definition) ActionPath(action string, id int) string {
	return fmt.Sprintf("/%s/%s/%d", d.Kind, action, id)
}

// UpdatePathFor возвращает путь обновления записи id.
func (d *Definition) UpdatePathFor(id int) string {
	return strings.ReplaceAll(d.UpdatePath, "{id}", strconv.Itoa(id))
}

// Action ищет действие по имени.
func (d *Definition) Action(name string) (Action, bool) {
	for _, a := range d.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// IsExportExcluded сообщает, исключено ли поле из экспорта.
func (d *Definition) IsExportExcluded(field string) bool {
	for _, f := range d.ExportExcluded {
		if f == field {
			return true
		}
	}
	return false
}

// IsDocument сообщает, является ли поле ссылкой на загруженный документ.
func (d *Definition) IsDocument(field string) bool {
	for _, f := range d.DocumentFields {
		if f == field {
			return true
		}
	}
	return false
}

// Label возвращает подпись поля: из колонок, из формы или само имя.
func (d *Definition) Label(field string) string {
	for _, c := range d.Columns {
		if c.Field == field {
			return c.Label
		}
	}
	if f, ok := d.Form.Field(field); ok && f.Label != "" {
		return f.Label
	}
	return field
}

// Catalogue — набор описаний ресурсов.
type Catalogue struct {
	defs  map[Kind]*Definition
	order []Kind
}

// NewCatalogue создаёт каталог из описаний в заданном порядке.
func NewCatalogue(defs ...*Definition) *Catalogue {
	c := &Catalogue{defs: make(map[Kind]*Definition, len(defs))}
	for _, d := range defs {
		c.defs[d.Kind] = d
		c.order = append(c.order, d.Kind)
	}
	return c
}

// Get возвращает описание ресурса.
func (c *Catalogue) Get(kind Kind) (*Definition, error) {
	d, ok := c.defs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return d, nil
}

// Lookup возвращает описание по строковому имени.
func (c *Catalogue) Lookup(name string) (*Definition, error) {
	return c.Get(Kind(strings.ToLower(strings.TrimSpace(name))))
}

// All возвращает описания в порядке регистрации.
func (c *Catalogue) All() []*Definition {
	out := make([]*Definition, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.defs[k])
	}
	return out
}

var (
	yesNo        = []string{"Yes", "No"}
	tyreStatuses = []string{"New", "Good", "Worn"}
)

// Default возвращает каталог ресурсов backend автопарка.
func Default() *Catalogue {
	return NewCatalogue(
		driversDef(),
		vehiclesDef(),
		supervisorsDef(),
		attendeesDef(),
		groupsDef(),
		ticketsDef(),
	)
}

func standardPaths(d *Definition) *Definition {
	d.ListPath = "/" + string(d.Kind) + "/"
	d.CreatePath = "/" + string(d.Kind) + "/create"
	d.UpdatePath = "/" + string(d.Kind) + "/update/{id}"
	return d
}

func deactivate() Action {
	return Action{
		Name:    "deactivate",
		Label:   "Деактивировать",
		Confirm: "Деактивировать запись?",
		Effect:  EffectRemove,
	}
}

func driversDef() *Definition {
	return standardPaths(&Definition{
		Kind:         Drivers,
		Title:        "Водители",
		Singular:     "водитель",
		SearchFields: []string{"name", "email", "contact_number", "licence_number"},
		Columns: []Column{
			{"id", "ID"},
			{"name", "Имя"},
			{"email", "Email"},
			{"contact_number", "Телефон"},
			{"licence_number", "Номер удостоверения"},
			{"licence_expiry", "Удостоверение действует до"},
			{"vehicle_number", "Транспорт"},
			{"status", "Статус"},
		},
		ExportExcluded: []string{"password", "hashed_password", "licence_document", "aadhar_document", "photo"},
		DocumentFields: []string{"licence_document", "aadhar_document", "photo"},
		Form: Schema{
			Steps: []Step{
				{Title: "Личные данные", Fields: []Field{
					{Name: "name", Label: "Имя", Type: FieldText, Required: true},
					{Name: "email", Label: "Email", Type: FieldEmail, Required: true},
					{Name: "contact_number", Label: "Телефон", Type: FieldText, Required: true},
					{Name: "password", Label: "Пароль", Type: FieldPassword},
					{Name: "date_of_birth", Label: "Дата рождения", Type: FieldDate},
					{Name: "address", Label: "Адрес", Type: FieldText},
				}},
				{Title: "Документы", Fields: []Field{
					{Name: "licence_number", Label: "Номер удостоверения", Type: FieldText, Required: true},
					{Name: "licence_expiry", Label: "Удостоверение действует до", Type: FieldDate, Required: true},
					{Name: "licence_document", Label: "Скан удостоверения", Type: FieldFile, Required: true},
					{Name: "aadhar_document", Label: "Удостоверение личности", Type: FieldFile},
					{Name: "photo", Label: "Фото", Type: FieldFile},
				}},
				{Title: "Назначение", Fields: []Field{
					{Name: "group_id", Label: "Группа (ID)", Type: FieldInt},
					{Name: "vehicle_id", Label: "Транспорт (ID)", Type: FieldInt},
					{Name: "status", Label: "Статус", Type: FieldSelect, Options: []string{"Active", "Inactive"}},
				}},
			},
		},
		Actions: []Action{deactivate()},
	})
}

func vehiclesDef() *Definition {
	return standardPaths(&Definition{
		Kind:         Vehicles,
		Title:        "Транспорт",
		Singular:     "транспортное средство",
		SearchFields: []string{"vehicle_number", "model", "make", "driver_name"},
		Columns: []Column{
			{"id", "ID"},
			{"vehicle_number", "Госномер"},
			{"make", "Марка"},
			{"model", "Модель"},
			{"capacity", "Вместимость"},
			{"tyre_count", "Шин"},
			{"loan_status", "Кредит"},
			{"insurance_expiry", "Страховка до"},
		},
		ExportExcluded: []string{"rc_document", "insurance_document", "permit_document"},
		DocumentFields: []string{"rc_document", "insurance_document", "permit_document"},
		Form: Schema{
			Steps: []Step{
				{Title: "Транспорт", Fields: []Field{
					{Name: "vehicle_number", Label: "Госномер", Type: FieldText, Required: true},
					{Name: "make", Label: "Марка", Type: FieldText},
					{Name: "model", Label: "Модель", Type: FieldText, Required: true},
					{Name: "capacity", Label: "Вместимость", Type: FieldInt, Required: true},
					{Name: "registration_date", Label: "Дата регистрации", Type: FieldDate},
				}},
				{Title: "Шины", Fields: []Field{
					{Name: "tyre_count", Label: "Количество шин", Type: FieldInt, Required: true},
					{Name: "tyre_status", Label: "Состояние основных шин", Type: FieldSelect, Options: tyreStatuses},
				}},
				{Title: "Финансы", Fields: []Field{
					{Name: "loan_status", Label: "Кредит", Type: FieldSelect, Required: true, Options: yesNo},
					{Name: "loan_provider", Label: "Кредитор", Type: FieldText,
						RequiredWhen: &Condition{Field: "loan_status", Equals: "Yes"}},
					{Name: "loan_amount", Label: "Сумма кредита", Type: FieldInt,
						RequiredWhen: &Condition{Field: "loan_status", Equals: "Yes"}},
					{Name: "insurance_expiry", Label: "Страховка до", Type: FieldDate},
				}},
				{Title: "Документы", Fields: []Field{
					{Name: "rc_document", Label: "Свидетельство о регистрации", Type: FieldFile, Required: true},
					{Name: "insurance_document", Label: "Страховой полис", Type: FieldFile},
					{Name: "permit_document", Label: "Разрешение", Type: FieldFile},
				}},
			},
			AlwaysSend: []string{"loan_provider", "loan_amount"},
			Tyres:      &TyreRule{
				CountField:    "tyre_count",
				Base:          4,
				ListField:     "extra_tyre_status",
				StatusOptions: tyreStatuses,
			},
		},
		Actions: []Action{deactivate()},
	})
}

func supervisorsDef() *Definition {
	return standardPaths(&Definition{
		Kind:         Supervisors,
		Title:        "Супервайзеры",
		Singular:     "супервайзер",
		SearchFields: []string{"name", "email", "contact_number"},
		Columns: []Column{
			{"id", "ID"},
			{"name", "Имя"},
			{"email", "Email"},
			{"contact_number", "Телефон"},
			{"group_name", "Группа"},
		},
		ExportExcluded: []string{"password", "hashed_password", "photo"},
		DocumentFields: []string{"photo"},
		Form: Schema{
			Steps: []Step{{Title: "Супервайзер", Fields: []Field{
				{Name: "name", Label: "Имя", Type: FieldText, Required: true},
				{Name: "email", Label: "Email", Type: FieldEmail, Required: true},
				{Name: "contact_number", Label: "Телефон", Type: FieldText, Required: true},
				{Name: "password", Label: "Пароль", Type: FieldPassword},
				{Name: "group_id", Label: "Группа (ID)", Type: FieldInt},
				{Name: "photo", Label: "Фото", Type: FieldFile},
			}}},
		},
		Actions: []Action{deactivate()},
	})
}

func attendeesDef() *Definition {
	return standardPaths(&Definition{
		Kind:         Attendees,
		Title:        "Сопровождающие",
		Singular:     "сопровождающий",
		SearchFields: []string{"name", "email", "contact_number", "vehicle_number"},
		Columns: []Column{
			{"id", "ID"},
			{"name", "Имя"},
			{"email", "Email"},
			{"contact_number", "Телефон"},
			{"vehicle_number", "Транспорт"},
		},
		ExportExcluded: []string{"password", "hashed_password", "id_document"},
		DocumentFields: []string{"id_document"},
		Form: Schema{
			Steps: []Step{{Title: "Сопровождающий", Fields: []Field{
				{Name: "name", Label: "Имя", Type: FieldText, Required: true},
				{Name: "email", Label: "Email", Type: FieldEmail, Required: true},
				{Name: "contact_number", Label: "Телефон", Type: FieldText, Required: true},
				{Name: "password", Label: "Пароль", Type: FieldPassword},
				{Name: "vehicle_id", Label: "Транспорт (ID)", Type: FieldInt},
				{Name: "id_document", Label: "Удостоверение личности", Type: FieldFile},
			}}},
			AlwaysSend: []string{"vehicle_id"},
		},
		Actions: []Action{
			{
				Name:       "unlink",
				Label:      "Открепить от транспорта",
				Confirm:    "Открепить сопровождающего от транспорта?",
				Effect:     EffectPatch,
				PatchField: "vehicle_number",
				PatchValue: nil,
			},
			deactivate(),
		},
	})
}

func groupsDef() *Definition {
	return standardPaths(&Definition{
		Kind:         Groups,
		Title:        "Группы",
		Singular:     "группа",
		SearchFields: []string{"group_name", "description", "supervisor_name"},
		Columns: []Column{
			{"id", "ID"},
			{"group_name", "Группа"},
			{"description", "Описание"},
			{"supervisor_name", "Супервайзер"},
			{"member_count", "Участников"},
		},
		Form: Schema{
			Steps: []Step{{Title: "Группа", Fields: []Field{
				{Name: "group_name", Label: "Название", Type: FieldText, Required: true},
				{Name: "description", Label: "Описание", Type: FieldText},
				{Name: "supervisor_id", Label: "Супервайзер (ID)", Type: FieldInt},
			}}},
			AlwaysSend: []string{"description"},
		},
		Actions: []Action{{
			Name:    "delete",
			Label:   "Удалить",
			Confirm: "Удалить группу?",
			Effect:  EffectRemove,
		}},
	})
}

func ticketsDef() *Definition {
	d := standardPaths(&Definition{
		Kind:         Tickets,
		Title:        "Заявки",
		Singular:     "заявка",
		DateRange:    true,
		SearchFields: []string{"title", "description", "vehicle_number", "raised_by"},
		Columns: []Column{
			{"id", "ID"},
			{"title", "Тема"},
			{"vehicle_number", "Транспорт"},
			{"priority", "Приоритет"},
			{"status", "Статус"},
			{"raised_by", "Автор"},
			{"created_at", "Создана"},
		},
		ExportExcluded: []string{"attachment"},
		DocumentFields: []string{"attachment"},
		Form: Schema{
			Steps: []Step{{Title: "Заявка", Fields: []Field{
				{Name: "title", Label: "Тема", Type: FieldText, Required: true},
				{Name: "description", Label: "Описание", Type: FieldText, Required: true},
				{Name: "vehicle_id", Label: "Транспорт (ID)", Type: FieldInt},
				{Name: "priority", Label: "Приоритет", Type: FieldSelect, Options: []string{"Low", "Medium", "High"}},
				{Name: "attachment", Label: "Вложение", Type: FieldFile},
			}}},
		},
		Actions: []Action{{
			Name:       "close",
			Label:      "Закрыть",
			Confirm:    "Закрыть заявку?",
			Effect:     EffectPatch,
			PatchField: "status",
			PatchValue: "Closed",
		}},
	})
	d.ListPath = "/tickets/history"
	return d
}
