package detail

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Paper — размер страницы в пикселях.
type Paper struct {
	Width  int
	Height int
}

// A4 — лист A4 при 96 DPI.
var A4 = Paper{Width: 794, Height: 1123}

const (
	margin    = 24
	lineGap   = 4
	labelCols = 28
	valueCols = 72
)

var (
	face      = basicfont.Face7x13
	inkColor  = color.RGBA{R: 0x21, G: 0x25, B: 0x29, A: 0xff}
	mutedInk  = color.RGBA{R: 0x6c, G: 0x75, B: 0x7d, A: 0xff}
	ruleColor = color.RGBA{R: 0xde, G: 0xe2, B: 0xe6, A: 0xff}
)

// Rasterize рисует заголовок и строки карточки на белом фоне.
// Длинные значения переносятся по ширине колонки.
func Rasterize(title string, items []Item) *image.RGBA {
	advance := face.Advance
	lineH := face.Height + lineGap
	labelW := labelCols * advance
	width := 2*margin + labelW + valueCols*advance

	type row struct {
		label string
		lines []string
	}
	rows := make([]row, 0, len(items))
	height := 2*margin + 2*lineH
	for _, it := range items {
		lines := wrap(it.Value, valueCols)
		rows = append(rows, row{label: truncate(printableLabel(it), labelCols-1), lines: lines})
		height += len(lines)*lineH + lineGap
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.White, image.Point{}, xdraw.Src)

	y := margin + face.Ascent
	drawText(img, margin, y, title, inkColor)
	y += 2 * lineH

	for _, r := range rows {
		drawText(img, margin, y, r.label, mutedInk)
		for i, line := range r.lines {
			drawText(img, margin+labelW, y+i*lineH, line, inkColor)
		}
		y += len(r.lines) * lineH
		ruleY := y - face.Ascent + lineGap/2
		xdraw.Draw(img, image.Rect(margin, ruleY, width-margin, ruleY+1), image.NewUniform(ruleColor), image.Point{}, xdraw.Src)
		y += lineGap
	}
	return img
}

// printableLabel возвращает подпись, если её символы есть в растровом
// шрифте, иначе имя поля.
func printableLabel(it Item) string {
	for _, r := range it.Label {
		if r > unicode.MaxLatin1 {
			return it.Field
		}
	}
	return it.Label
}

func drawText(dst *image.RGBA, x, y int, s string, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrap разбивает текст на строки не длиннее n символов, по словам
// где возможно.
func wrap(s string, n int) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		cur := ""
		for _, w := range words {
			for utf8.RuneCountInString(w) > n {
				if cur != "" {
					lines = append(lines, cur)
					cur = ""
				}
				r := []rune(w)
				lines = append(lines, string(r[:n]))
				w = string(r[n:])
			}
			switch {
			case cur == "":
				cur = w
			case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(w) <= n:
				cur += " " + w
			default:
				lines = append(lines, cur)
				cur = w
			}
		}
		if cur != "" || len(words) == 0 {
			lines = append(lines, cur)
		}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// Paginate масштабирует растр до ширины листа и режет его на
// страницы высотой paper.Height. Последняя страница дополняется белым.
func Paginate(src image.Image, paper Paper) []*image.RGBA {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || paper.Width <= 0 || paper.Height <= 0 {
		return nil
	}

	scaledH := b.Dy() * paper.Width / b.Dx()
	if scaledH < 1 {
		scaledH = 1
	}
	scaled := image.NewRGBA(image.Rect(0, 0, paper.Width, scaledH))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, xdraw.Src, nil)

	var pages []*image.RGBA
	for top := 0; top < scaledH; top += paper.Height {
		page := image.NewRGBA(image.Rect(0, 0, paper.Width, paper.Height))
		xdraw.Draw(page, page.Bounds(), image.White, image.Point{}, xdraw.Src)
		xdraw.Draw(page, page.Bounds(), scaled, image.Point{Y: top}, xdraw.Src)
		pages = append(pages, page)
	}
	return pages
}

// Pages рисует карточку и режет её на листы.
func Pages(title string, items []Item, paper Paper) []*image.RGBA {
	return Paginate(Rasterize(title, items), paper)
}

// EncodePNG записывает страницу в формате PNG.
func EncodePNG(w io.Writer, page image.Image) error {
	return png.Encode(w, page)
}
