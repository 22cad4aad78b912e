package export

import (
	"html/template"
	"io"
	"time"
)

var matrixTemplate = template.Must(template.New("informe").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; font-size: 11px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 3px 6px; text-align: right; }
th { background: #D9E1F2; }
td.sku, th.sku { text-align: left; }
tr.totals td { font-weight: bold; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Generated {{.GeneratedAt}}</p>
<table>
{{range $i, $row := .Rows}}{{if eq $i 0}}<tr>{{range $j, $cell := $row}}<th{{if eq $j 0}} class="sku"{{end}}>{{$cell}}</th>{{end}}</tr>
{{else}}<tr{{if $.IsLast $i}} class="totals"{{end}}>{{range $j, $cell := $row}}<td{{if eq $j 0}} class="sku"{{end}}>{{$cell}}</td>{{end}}</tr>
{{end}}{{end}}</table>
</body>
</html>
`))

type matrixPage struct {
	Title       string
	GeneratedAt string
	Rows        [][]string
}

func (p matrixPage) IsLast(i int) bool { return i == len(p.Rows)-1 }

// WriteMatrixHTML renders the informe matrix as a printable HTML page.
func WriteMatrixHTML(w io.Writer, title string, m Matrix, at time.Time) error {
	return matrixTemplate.Execute(w, matrixPage{
		Title:       title,
		GeneratedAt: at.UTC().Format("2006-01-02 15:04 MST"),
		Rows:        matrixRecords(m),
	})
}
