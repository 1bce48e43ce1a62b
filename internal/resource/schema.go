package resource

// FieldType — тип поля формы.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldInt      FieldType = "int"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldFile     FieldType = "file"
	FieldPassword FieldType = "password"
)

// Condition — условие обязательности: поле Field равно Equals.
type Condition struct {
	Field  string
	Equals string
}

// Field — поле формы.
type Field struct {
	Name     string
	Label    string
	Type     FieldType
	Required bool
	// RequiredWhen делает поле обязательным при выполнении условия.
	RequiredWhen *Condition
	// Options — допустимые значения для FieldSelect.
	Options []string
}

// Step — шаг формы.
type Step struct {
	Title  string
	Fields []Field
}

// TyreRule — расширение списка статусов шин сверх базового количества.
type TyreRule struct {
	// CountField — поле с количеством шин.
	CountField string
	// Base — количество шин, покрытых основными полями.
	Base int
	// ListField — имя списка статусов дополнительных шин в запросе.
	ListField string
	// StatusOptions — допустимые статусы шины.
	StatusOptions []string
}

// Schema — схема формы ресурса.
type Schema struct {
	Steps []Step
	// AlwaysSend — поля, отправляемые даже пустыми.
	AlwaysSend []string
	Tyres      *TyreRule
}

// StepCount возвращает число шагов.
func (s Schema) StepCount() int {
	return len(s.Steps)
}

// Field ищет поле по имени.
func (s Schema) Field(name string) (Field, bool) {
	for _, st := range s.Steps {
		for _, f := range st.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// StepOf возвращает индекс шага, содержащего поле, или -1.
func (s Schema) StepOf(name string) int {
	for i, st := range s.Steps {
		for _, f := range st.Fields {
			if f.Name == name {
				return i
			}
		}
	}
	return -1
}

// Fields возвращает все поля в порядке шагов.
func (s Schema) Fields() []Field {
	var out []Field
	for _, st := range s.Steps {
		out = append(out, st.Fields...)
	}
	return out
}

// IsAlwaysSent сообщает, входит ли поле в AlwaysSend.
func (s Schema) IsAlwaysSent(name string) bool {
	for _, n := range s.AlwaysSend {
		if n == name {
			return true
		}
	}
	return false
}
