// Package email renders forecast digests and delivers them through an EmailSender.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
)

const (
	generatedAtLayout = "Jan 2, 2006, 3:04 PM"
	kphToMph          = 0.621371
)

var badgeColors = map[models.Badge]template.CSS{
	models.BadgePrime: "#0b8457",
	models.BadgeFair:  "#c97704",
	models.BadgePoor:  "#b91c1c",
}

var funcs = template.FuncMap{
	"badgeColor": badgeColor,
	"temp":       formatTemp,
	"wind":       formatWind,
	"factors":    formatFactors,
	"fixed0":     func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"fixed2":     func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

var digestTemplate = template.Must(template.New("digest").Funcs(funcs).Parse(digestHTML))

type digestView struct {
	GeneratedAt string
	Location    string
	Best        models.ForecastSlice
	HasBest     bool
	Slices      []models.ForecastSlice
}

// Render produces the HTML body of a forecast digest.
func Render(resp models.ForecastResponse) (string, error) {
	view := digestView{
		GeneratedAt: formatGeneratedAt(resp.GeneratedAt, resp.Location),
		Location:    resp.Location.Name,
		Slices:      resp.Slices,
	}
	view.Best, view.HasBest = resp.BestSlice()

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// Subject returns the default subject line for a digest about locationName.
func Subject(locationName string) string {
	return "Dogwalk suitability in " + locationName
}

// formatGeneratedAt shows iso in the location's zone, resolved the same way as
// the slice labels.
func formatGeneratedAt(iso string, loc models.LocationSummary) string {
	ts, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return ts.In(client.LoadZone(loc.Timezone, loc.UTCOffsetSeconds)).Format(generatedAtLayout)
}

func badgeColor(b models.Badge) template.CSS {
	if c, ok := badgeColors[b]; ok {
		return c
	}
	return badgeColors[models.BadgePoor]
}

func formatTemp(c float64) string {
	f := c*9/5 + 32
	return fmt.Sprintf("%.0f°F (%.0f°C)", f, c)
}

func formatWind(kph float64) string {
	return fmt.Sprintf("%.0f mph", kph*kphToMph)
}

func formatFactors(factors []string) string {
	if len(factors) == 0 {
		return "Nothing notable"
	}
	return strings.Join(factors, " · ")
}

const digestHTML = `<div style="font-family: Inter, -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;background:#ecd0c2;padding:28px;">
  <main style="max-width:640px;margin:0 auto;background:#fdfdfd;border-radius:20px;padding:32px;box-shadow:0 20px 55px rgba(15,23,42,0.18);">
    <header style="margin-bottom:20px;">
      <p style="margin:0;color:#475569;font-size:0.9rem;">{{.GeneratedAt}}</p>
      <h1 style="margin:4px 0;font-size:2rem;color:#0f172a;font-weight:700;">DogWx</h1>
      <p style="margin:0;color:#475569;font-size:1rem;">{{.Location}} · A weather index for dog walking</p>
      {{- if .HasBest}}
      <p style="margin:12px 0 0;color:#0f172a;font-weight:600;">Best window: {{.Best.LocalTimeLabel}} ({{.Best.Suitability.Summary}})</p>
      {{- end}}
    </header>
    {{- range $i, $s := .Slices}}
    <section style="border-radius:16px;border-top:6px solid {{badgeColor $s.Suitability.Badge}};background:#f7f7f9;padding:16px;margin-bottom:16px;">
      <header style="display:flex;justify-content:space-between;align-items:center;margin-bottom:8px;font-family:Inter,Segoe UI,sans-serif;">
        <div>
          <p style="margin:0;font-size:0.9rem;color:#475569;">{{$s.LocalTimeLabel}}{{if eq $i 0}} · now{{end}}</p>
          <strong style="font-size:1rem;color:#0f172a;">{{$s.Suitability.Summary}}</strong>
        </div>
        <div style="text-align:right;">
          <span style="display:block;font-size:1.75rem;font-weight:600;color:#0f172a;">{{$s.Suitability.Score}}</span>
          <span style="color:{{badgeColor $s.Suitability.Badge}};font-weight:600;">{{$s.Suitability.Badge}}</span>
        </div>
      </header>
      <table style="width:100%;border-collapse:collapse;font-size:0.95rem;color:#0f172a;">
        <tbody>
          <tr>
            <td style="padding:6px 0;color:#475569;">Temp</td>
            <td style="padding:6px 0;font-weight:600;">{{temp $s.Parameters.TemperatureC}}</td>
            <td style="padding:6px 0;color:#475569;">Feels like</td>
            <td style="padding:6px 0;font-weight:600;">{{temp $s.Parameters.ApparentTemperatureC}}</td>
          </tr>
          <tr>
            <td style="padding:6px 0;color:#475569;">Precip chance</td>
            <td style="padding:6px 0;font-weight:600;">{{fixed0 $s.Parameters.PrecipitationProbability}}%</td>
            <td style="padding:6px 0;color:#475569;">Rain rate</td>
            <td style="padding:6px 0;font-weight:600;">{{fixed2 $s.Parameters.PrecipitationMm}} mm</td>
          </tr>
          <tr>
            <td style="padding:6px 0;color:#475569;">Wind</td>
            <td style="padding:6px 0;font-weight:600;">{{wind $s.Parameters.WindSpeedKph}}</td>
            <td style="padding:6px 0;color:#475569;">Factors</td>
            <td style="padding:6px 0;font-weight:600;">{{factors $s.Suitability.Factors}}</td>
          </tr>
        </tbody>
      </table>
    </section>
    {{- end}}
    <footer style="margin-top:24px;font-size:0.85rem;color:#6b7280;text-align:center;">
      Remember to adjust timing if sidewalks are icy or scorching. Reply to tweak your default location.
    </footer>
  </main>
</div>
`
