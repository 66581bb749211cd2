package pipeline

import "strings"

type DetectResult struct {
	IsDispatchReport bool
	Score            float64
	Reason           string
}

var detectKeywords = []string{"remisi", "arkik", "despacho", "dosificaci", "volumen", "obra", "planta", "entregas"}

// DetectDispatchReport scores how likely a message is the plant dispatch
// report rather than ordinary correspondence. Rules only; the mailbox
// also receives invoices and quality reports from the same senders.
func DetectDispatchReport(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".xls") || strings.HasSuffix(ln, ".csv") {
			score += 0.35
			break
		}
		if strings.HasSuffix(ln, ".pdf") {
			score += 0.15
		}
	}

	if strings.Contains(html, "<table") && strings.Contains(html, "remisi") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isReport := score >= 0.45
	reason := "rules_negative"
	if isReport {
		reason = "rules_positive"
	}

	return DetectResult{IsDispatchReport: isReport, Score: score, Reason: reason}
}
