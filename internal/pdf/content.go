package pdf

import (
	"slices"
	"strconv"
	"strings"
)

// pdfOperators are content stream operators that never carry page text
var pdfOperators = []string{
	"BT", "ET", "Tf", "Td", "TD", "Tm", "T*", "Tj", "TJ", "'", "\"",
	"q", "Q", "cm", "w", "J", "j", "M", "d", "ri", "i", "gs",
	"CS", "cs", "SC", "SCN", "sc", "scn", "G", "g", "RG", "rg", "K", "k",
	"m", "l", "c", "v", "y", "h", "re", "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n",
	"W", "W*", "BX", "EX", "MP", "DP", "BMC", "BDC", "EMC",
}

// octalReplacements maps common octal escapes in content streams to text
var octalReplacements = map[string]string{
	"\\037": "",
	"\\260": "°",
	"\\256": "®",
	"\\251": "©",
	"\\231": "'",
	"\\221": "'",
	"\\223": "\"",
	"\\224": "\"",
	"\\226": "-",
	"\\227": "-",
	"\\240": " ",
	"\\012": "\n",
	"\\015": "\r",
	"\\011": "\t",
}

// textFromContentStream recovers readable text from a raw page content stream.
// It returns an empty string when nothing readable is found.
func textFromContentStream(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	texts := textShowStrings(content)
	if len(texts) == 0 {
		return readableLines(content)
	}

	return cleanupExtractedText(strings.Join(texts, " "))
}

// textShowStrings returns the string operands of every text-show operation
func textShowStrings(content string) []string {
	var texts []string

	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Tj, TJ, ' and "
		if strings.Contains(line, " Tj") || strings.Contains(line, " TJ") ||
			strings.HasSuffix(line, "Tj") || strings.HasSuffix(line, "TJ") ||
			strings.Contains(line, "' ") || strings.Contains(line, "\" ") {
			texts = append(texts, stringOperands(line)...)
		}
	}

	return texts
}

// stringOperands extracts the literal (...) strings from an operation line
func stringOperands(operation string) []string {
	var texts []string
	inText := false
	start := -1

	for i, char := range operation {
		escaped := i > 0 && operation[i-1] == '\\'
		switch {
		case char == '(' && !escaped && !inText:
			inText = true
			start = i + 1
		case char == ')' && !escaped && inText:
			if start != -1 && start < i {
				text := unescapeLiteral(operation[start:i])
				if strings.TrimSpace(text) != "" {
					texts = append(texts, text)
				}
			}
			inText = false
			start = -1
		}
	}

	return texts
}

func unescapeLiteral(text string) string {
	return strings.NewReplacer(
		"\\(", "(",
		"\\)", ")",
		"\\\\", "\\",
		"\\n", "\n",
		"\\r", "\r",
		"\\t", "\t",
	).Replace(text)
}

// readableLines keeps lines that look like prose rather than drawing commands
func readableLines(content string) string {
	var lines []string

	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isOperatorLine(line) {
			continue
		}
		if isReadableText(line) {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, " ")
}

func isOperatorLine(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 {
		return false
	}

	if slices.Contains(pdfOperators, words[len(words)-1]) {
		return true
	}

	// Mostly numeric lines are coordinates and matrices
	nonNumeric := 0
	for _, word := range words {
		if _, err := strconv.ParseFloat(word, 64); err != nil {
			nonNumeric++
		}
	}

	return float64(nonNumeric)/float64(len(words)) < 0.3
}

func isReadableText(line string) bool {
	if len(line) < 2 {
		return false
	}

	alpha := 0
	for _, char := range line {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			alpha++
		}
	}

	return float64(alpha)/float64(len(line)) >= 0.3
}

// cleanupExtractedText normalises escapes, control characters and spacing
func cleanupExtractedText(text string) string {
	text = strings.TrimSpace(text)
	text = processOctalEscapes(text)
	text = removeBinaryCharacters(text)

	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}

	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, " ,", ",")
	text = strings.ReplaceAll(text, " !", "!")
	text = strings.ReplaceAll(text, " ?", "?")

	return strings.TrimSpace(text)
}

// processOctalEscapes replaces known octal escapes and drops unknown ones
func processOctalEscapes(text string) string {
	for octal, replacement := range octalReplacements {
		text = strings.ReplaceAll(text, octal, replacement)
	}

	var b strings.Builder
	for i := 0; i < len(text); {
		if i+3 < len(text) && text[i] == '\\' &&
			isOctalDigit(text[i+1]) && isOctalDigit(text[i+2]) && isOctalDigit(text[i+3]) {
			i += 4
			continue
		}
		b.WriteByte(text[i])
		i++
	}

	return b.String()
}

func isOctalDigit(c byte) bool {
	return c >= '0' && c <= '7'
}

// removeBinaryCharacters keeps printable text and whitespace, turning other
// control characters into spaces
func removeBinaryCharacters(text string) string {
	var b strings.Builder

	for _, char := range text {
		switch {
		case char >= 32 && char <= 126,
			char == '\n' || char == '\r' || char == '\t',
			char >= 0x00A0 && char <= 0x00FF,
			char >= 0x2000 && char <= 0x206F:
			b.WriteRune(char)
		case char < 32:
			b.WriteRune(' ')
		}
	}

	return b.String()
}
