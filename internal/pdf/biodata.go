package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"biodata/internal/models"
)

// Generator renders an application as a printable biodata sheet.
type Generator struct {
	PhotoDir string // where main_/side_ photos live
	FontPath string // TTF with the glyphs applicants use; core Helvetica when missing
}

func NewGenerator(photoDir, fontPath string) *Generator {
	return &Generator{PhotoDir: filepath.Clean(photoDir), FontPath: fontPath}
}

type section struct {
	title string
	rows  [][2]string
}

func sections(a *models.Application) []section {
	b := a.Biodata
	return []section{
		{"Personal", [][2]string{
			{"Name", b.Name},
			{"Gender", b.Gender},
			{"Date of birth", b.DateOfBirth},
			{"Time of birth", b.TimeOfBirth},
			{"Place of birth", b.PlaceOfBirth},
			{"Height", b.Height},
			{"Current city", b.CurrentLiving},
		}},
		{"Horoscope", [][2]string{
			{"Birth star", b.BirthStar},
			{"Zodiac sign", b.ZodiacSign},
			{"Gothram", b.Gothram},
		}},
		{"Education & career", [][2]string{
			{"Education", b.EducationalDetails},
			{"Designation", b.Designation},
			{"Company", b.Company},
			{"Experience", b.PreviousWorkExperience},
		}},
		{"Family", [][2]string{
			{"Father", b.FathersName},
			{"Father's father", b.FathersFatherName},
			{"Mother", b.MothersName},
			{"Mother's father", b.MothersFatherName},
			{"Siblings", b.Siblings},
		}},
		{"Contact", [][2]string{
			{"Email", b.EmailID},
			{"Phone", b.MainContactNumber},
			{"Alternative phone", b.AlternativeContactNumber},
		}},
	}
}

// Render writes the PDF for a to w. The Generator is read-only here, so one
// instance can serve concurrent requests.
func (g *Generator) Render(w io.Writer, a *models.Application) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Biodata "+a.UniqueID, true)
	pdf.SetAuthor("Biodata", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	d := &doc{Fpdf: pdf, font: g.setupFont(pdf)}
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(d.font, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  |  page %d/{nb}", a.UniqueID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(d.font, "B", 18)
	pdf.CellFormat(0, 10, "BIODATA", "", 1, "C", false, 0, "")
	pdf.SetFont(d.font, "", 11)
	status := "Pending review"
	if a.ApprovedAt != nil {
		status = "Approved " + a.ApprovedAt.Format("02.01.2006")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("ID %s  -  %s", a.UniqueID, status), "", 1, "C", false, 0, "")
	d.hr()

	g.photo(pdf, a.MainPhotoURL)

	for _, s := range sections(a) {
		d.sectionTitle(s.title)
		for _, kv := range s.rows {
			d.kvLine(kv[0], kv[1])
		}
		pdf.Ln(2)
		d.hr()
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// setupFont registers the UTF-8 font on pdf when the file exists and returns
// the family to use.
func (g *Generator) setupFont(pdf *gofpdf.Fpdf) string {
	if g.FontPath == "" {
		return "Helvetica"
	}
	if _, err := os.Stat(g.FontPath); err != nil {
		return "Helvetica"
	}
	pdf.AddUTF8Font("DejaVu", "", g.FontPath)
	pdf.AddUTF8Font("DejaVu", "B", g.FontPath)
	return "DejaVu"
}

// photo places the main photo top right, if the file is present.
func (g *Generator) photo(pdf *gofpdf.Fpdf, filename string) {
	if filename == "" {
		return
	}
	path := filepath.Join(g.PhotoDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return
	}
	tp := "JPG"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		tp = "PNG"
	}
	opts := gofpdf.ImageOptions{ImageType: tp, ReadDpi: false}
	pdf.ImageOptions(path, 150, pdf.GetY()+2, 40, 0, false, opts, 0, "")
	if pdf.Err() {
		// a broken photo should not cost the whole document
		pdf.ClearError()
	}
}

// doc is the state of one render.
type doc struct {
	*gofpdf.Fpdf
	font string
}

func (d *doc) sectionTitle(s string) {
	d.SetFont(d.font, "B", 12)
	d.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	d.SetFont(d.font, "", 11)
}

func (d *doc) kvLine(key, val string) {
	if val == "" {
		val = "-"
	}
	d.SetFont(d.font, "B", 11)
	d.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	d.SetFont(d.font, "", 11)
	d.MultiCell(80, 6, val, "", "L", false)
}

func (d *doc) hr() {
	y := d.GetY() + 1.5
	d.SetLineWidth(0.2)
	d.Line(20, y, 190, y)
	d.SetY(y + 2)
}
