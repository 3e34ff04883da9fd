// Package ai provides the AI client interface and implementations.
package ai

import (
	"bytes"
	"text/template"
)

// Markers shared by the prompts and the mock client.
const (
	yesNoInstruction = "Reply with exactly 'yes' or 'no'."
	jsonOnlyMarker   = "Format the response as valid JSON only"
	summaryMarker    = "Provide the response in clear, concise paragraphs"
)

// DefaultPromptBuilder implements PromptBuilder with templated prompts.
type DefaultPromptBuilder struct {
	reportCheck *template.Template
	extraction  *template.Template
	queryCheck  *template.Template
	summary     *template.Template
}

const reportCheckTemplate = `Does the following text contain structured medical or health-related information? ` + yesNoInstruction + `

Content:
"""{{.Text}}"""`

// extractionTemplate lists the keys in the order they are validated.
const extractionTemplate = `Analyze the following health report and extract key medical details in JSON format with these exact fields:
- problem: string (main health issue identified)
- solution: string (recommended treatment)
- precautions: string[] (list of precautions)
- suggestions: string[] (list of suggestions)
- tips: string[] (list of health tips)
- uses: string[] (list of medication uses if mentioned)
- dosage: string (recommended dosage if mentioned)
- sideEffects: string[] (list of side effects if mentioned)
- route: string (administration route if mentioned)
- disclaimer: string (any disclaimers)

` + jsonOnlyMarker + `, without any additional text or markdown.

Report Content:
"""{{.Text}}"""`

const queryCheckTemplate = `Is the following query related to health? ` + yesNoInstruction + `

Query: "{{.Text}}"`

const summaryTemplate = `Analyze the following text and provide a summary with key points:

Text:
{{.Text}}

` + summaryMarker + ` with bullet points for key findings.`

// transcriptionPrompt accompanies every image sent for OCR.
const transcriptionPrompt = `Transcribe all text visible in this image of a medical document exactly as written, preserving line breaks and table rows. Return only the transcribed text. If the image contains no readable text, return an empty response.`

// NewDefaultPromptBuilder creates a new prompt builder with default templates.
func NewDefaultPromptBuilder() (*DefaultPromptBuilder, error) {
	b := &DefaultPromptBuilder{}
	for _, t := range []struct {
		dst  **template.Template
		name string
		text string
	}{
		{&b.reportCheck, "report_check", reportCheckTemplate},
		{&b.extraction, "extraction", extractionTemplate},
		{&b.queryCheck, "query_check", queryCheckTemplate},
		{&b.summary, "summary", summaryTemplate},
	} {
		tmpl, err := template.New(t.name).Parse(t.text)
		if err != nil {
			return nil, err
		}
		*t.dst = tmpl
	}
	return b, nil
}

// ReportClassification builds the yes/no health gate for report content.
func (p *DefaultPromptBuilder) ReportClassification(content string) string {
	return render(p.reportCheck, content, "Does this text contain medical information? "+yesNoInstruction+"\n\n")
}

// ReportExtraction builds the structured extraction prompt.
func (p *DefaultPromptBuilder) ReportExtraction(content string) string {
	return render(p.extraction, content, "Extract the medical details of this report as JSON. "+jsonOnlyMarker+".\n\n")
}

// QueryClassification builds the yes/no health gate for chat queries.
func (p *DefaultPromptBuilder) QueryClassification(query string) string {
	return render(p.queryCheck, query, "Is this query related to health? "+yesNoInstruction+"\n\n")
}

// Summary builds the free-text summary prompt.
func (p *DefaultPromptBuilder) Summary(text string) string {
	return render(p.summary, text, "Summarize the following text:\n\n")
}

func render(tmpl *template.Template, text, fallbackPrefix string) string {
	var buf bytes.Buffer
	data := struct {
		Text string
	}{
		Text: text,
	}

	if err := tmpl.Execute(&buf, data); err != nil {
		// Fallback to simple format if template fails
		return fallbackPrefix + text
	}

	return buf.String()
}
