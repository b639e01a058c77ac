package notifications

import (
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// BookingView is the data every template renders from.
type BookingView struct {
	BookingID               string
	ActivityTitle           string
	CustomerName            string
	CustomerEmail           string
	Participants            int
	BookingDate             string
	Total                   string
	PlatformFee             string
	ProviderAmount          string
	EstablishmentCommission string
	Invoice                 string
	ProviderName            string
	PartnerName             string
	EstablishmentName       string
}

type templateSource struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

type compiledTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Templates holds one compiled message per audience.
type Templates struct {
	byAudience map[enums.NotificationAudience]compiledTemplate
}

// DefaultTemplates compiles the templates shipped with the binary.
func DefaultTemplates() (*Templates, error) {
	return LoadTemplates(defaultTemplatesYAML)
}

// LoadTemplates parses a YAML document keyed by audience. Every audience must be present.
func LoadTemplates(raw []byte) (*Templates, error) {
	var sources map[string]templateSource
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}

	out := &Templates{byAudience: make(map[enums.NotificationAudience]compiledTemplate, len(sources))}
	for name, src := range sources {
		audience, err := enums.ParseNotificationAudience(name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(src.Subject) == "" || strings.TrimSpace(src.Text) == "" {
			return nil, fmt.Errorf("template %s needs a subject and a text body", name)
		}
		compiled := compiledTemplate{}
		if compiled.subject, err = texttemplate.New(name + ".subject").Option("missingkey=error").Parse(src.Subject); err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		if compiled.text, err = texttemplate.New(name + ".text").Option("missingkey=error").Parse(src.Text); err != nil {
			return nil, fmt.Errorf("template %s text: %w", name, err)
		}
		if strings.TrimSpace(src.HTML) != "" {
			if compiled.html, err = htmltemplate.New(name + ".html").Parse(src.HTML); err != nil {
				return nil, fmt.Errorf("template %s html: %w", name, err)
			}
		}
		out.byAudience[audience] = compiled
	}

	for _, audience := range []enums.NotificationAudience{
		enums.NotificationAudienceCustomer,
		enums.NotificationAudienceProvider,
		enums.NotificationAudiencePartner,
	} {
		if _, ok := out.byAudience[audience]; !ok {
			return nil, fmt.Errorf("missing template for %s", audience)
		}
	}
	return out, nil
}

// Render produces the subject, plain text and HTML bodies for the audience.
func (t *Templates) Render(audience enums.NotificationAudience, view BookingView) (subject, text, html string, err error) {
	compiled, ok := t.byAudience[audience]
	if !ok {
		return "", "", "", fmt.Errorf("no template for audience %q", audience)
	}

	var sb strings.Builder
	if err := compiled.subject.Execute(&sb, view); err != nil {
		return "", "", "", fmt.Errorf("render %s subject: %w", audience, err)
	}
	subject = strings.TrimSpace(sb.String())

	sb.Reset()
	if err := compiled.text.Execute(&sb, view); err != nil {
		return "", "", "", fmt.Errorf("render %s text: %w", audience, err)
	}
	text = sb.String()

	if compiled.html != nil {
		sb.Reset()
		if err := compiled.html.Execute(&sb, view); err != nil {
			return "", "", "", fmt.Errorf("render %s html: %w", audience, err)
		}
		html = sb.String()
	}
	return subject, text, html, nil
}
