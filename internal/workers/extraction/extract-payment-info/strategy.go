// internal/workers/extraction/extract-payment-info/strategy.go
package extractpaymentinfo

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/models"
)

const (
	StrategyTemplate        = "template"
	StrategyFixedWidth      = "fixed_width"
	StrategyCurrencyPattern = "currency_pattern"
	StrategyLabelledFields  = "labelled_fields"
)

// Strategy is one way of pulling payment data out of a prepared email.
type Strategy interface {
	Name() string
	Attempt(doc *Document, diag *Diagnostics) (*Data, bool)
}

var (
	numberPattern     = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	fixedWidthPattern = regexp.MustCompile(`\d{42,43}`)
	fixedWidthLayout  = regexp.MustCompile(`^(\d{10})(\d{10})(\d{6})(\d{8})(\d{9})$`)
	accountPattern    = regexp.MustCompile(`\b(\d{10})\b`)

	currencyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:amount|sum|value|total|paid|payment|deposit|transfer|credit)[\s:]+(?:ngn|naira|₦)\s*([\d,]+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)(?:ngn|naira|₦)\s*([\d,]+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:naira|ngn)\b`),
	}

	senderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:from)\s+([A-Z][A-Z ]+?)\s+(?i:to)\b`),
		regexp.MustCompile(`(?i)(?:sender|sender name|payer|remitter|originator)\s*:\s*([A-Za-z][A-Za-z .'-]+)`),
		regexp.MustCompile(`(?i:description)[\s:]+.*?([A-Z][A-Z ]{2,}?)\s+(?:TRF|TRANSFER|FOR|TO)\b`),
	}

	labelledAmountPattern  = regexp.MustCompile(`(?i)^(?:amount|amount credited|credit amount|transaction amount)\s*:\s*(.+)$`)
	labelledAccountPattern = regexp.MustCompile(`(?i)^(?:account|account number|account no|acct no|beneficiary account)\.?\s*:\s*\D*(\d{10})`)
)

// parseAmount reads the first number in s, stripping thousands separators.
func parseAmount(s string) (decimal.Decimal, bool) {
	raw := numberPattern.FindString(s)
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func acceptable(amount, floor, ceiling decimal.Decimal) bool {
	return amount.IsPositive() && amount.GreaterThanOrEqual(floor) && amount.LessThan(ceiling)
}

func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " .,-:")
	if len(s) < 3 {
		return ""
	}
	return s
}

func findSenderName(text string) string {
	for _, re := range senderPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := cleanName(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

// ==================== template ====================

type templateStrategy struct {
	cfg *Config
}

func (s *templateStrategy) Name() string { return StrategyTemplate }

type rankedTemplate struct {
	tpl         models.BankTemplate
	specificity int
}

func (s *templateStrategy) Attempt(doc *Document, diag *Diagnostics) (*Data, bool) {
	var ranked []rankedTemplate
	for _, t := range doc.Templates {
		if !t.IsActive {
			continue
		}
		if spec := t.SenderSpecificity(doc.From); spec > models.SenderMatchNone {
			ranked = append(ranked, rankedTemplate{tpl: t, specificity: spec})
		}
	}
	if len(ranked) == 0 {
		diag.fail("template: no active template for sender")
		return nil, false
	}

	// Priority decides; sender specificity breaks ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].tpl.Priority != ranked[j].tpl.Priority {
			return ranked[i].tpl.Priority > ranked[j].tpl.Priority
		}
		return ranked[i].specificity > ranked[j].specificity
	})

	combined := doc.Combined()
	for _, r := range ranked {
		t := r.tpl
		amount, ok := s.field(doc, combined, t.AmountPattern, t.AmountFieldLabel, diag, t.BankName)
		if !ok {
			continue
		}
		value, ok := parseAmount(amount)
		if !ok || !acceptable(value, s.cfg.MinTemplateAmount, s.cfg.AmountCeiling) {
			diag.fail(fmt.Sprintf("template %s: amount %q rejected", t.BankName, amount))
			continue
		}

		data := &Data{Amount: value, Bank: t.BankName}
		if name, ok := s.field(doc, combined, t.SenderNamePattern, t.SenderNameFieldLabel, diag, t.BankName); ok {
			data.SenderName = cleanName(name)
		}
		if acct, ok := s.field(doc, combined, t.AccountNumberPattern, t.AccountNumberFieldLabel, diag, t.BankName); ok {
			if m := accountPattern.FindStringSubmatch(acct); m != nil {
				data.AccountNumber = m[1]
			} else {
				data.AccountNumber = strings.TrimSpace(acct)
			}
		}
		diag.step(fmt.Sprintf("template %s matched", t.BankName))
		return data, true
	}

	diag.fail("template: no template yielded an amount")
	return nil, false
}

// field tries the explicit pattern first, then the label.
func (s *templateStrategy) field(doc *Document, text, pattern, label string, diag *Diagnostics, bank string) (string, bool) {
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			diag.fail(fmt.Sprintf("template %s: invalid pattern %q: %v", bank, pattern, err))
		} else if m := re.FindStringSubmatch(text); m != nil {
			if len(m) > 1 {
				return strings.TrimSpace(m[1]), true
			}
			return strings.TrimSpace(m[0]), true
		}
	}
	if label != "" {
		return doc.LookupLabel(label)
	}
	return "", false
}

// ==================== fixed width ====================

type fixedWidthStrategy struct {
	cfg *Config
}

func (s *fixedWidthStrategy) Name() string { return StrategyFixedWidth }

func (s *fixedWidthStrategy) Attempt(doc *Document, diag *Diagnostics) (*Data, bool) {
	for _, body := range doc.Bodies() {
		for _, block := range fixedWidthBlocks(body) {
			if len(block) == 42 {
				block += "0"
				diag.step("fixed_width: padded 42-digit block")
			}
			data, ok := decodeFixedWidth(block)
			if !ok {
				continue
			}
			if !acceptable(data.Amount, decimal.Zero, s.cfg.AmountCeiling) {
				diag.fail(fmt.Sprintf("fixed_width: amount %s out of range", data.Amount))
				continue
			}
			return data, true
		}
	}
	diag.fail("fixed_width: no 42/43-digit block")
	return nil, false
}

// fixedWidthBlocks returns the 42 or 43 digit runs of body that are not part
// of a longer digit run.
func fixedWidthBlocks(body string) []string {
	var blocks []string
	for _, loc := range fixedWidthPattern.FindAllStringIndex(body, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigit(body[start-1]) {
			continue
		}
		if end < len(body) && isDigit(body[end]) {
			continue
		}
		blocks = append(blocks, body[start:end])
	}
	return blocks
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// decodeFixedWidth splits a 43-digit description block into account,
// payer account, amount in minor units, YYYYMMDD date and reference.
func decodeFixedWidth(block string) (*Data, bool) {
	parts := fixedWidthLayout.FindStringSubmatch(block)
	if parts == nil {
		return nil, false
	}

	minor, err := decimal.NewFromString(parts[3])
	if err != nil {
		return nil, false
	}

	data := &Data{
		AccountNumber:      parts[1],
		PayerAccountNumber: parts[2],
		Amount:             minor.Div(decimal.NewFromInt(100)),
		Reference:          parts[5],
	}
	if d, err := time.Parse("20060102", parts[4]); err == nil {
		data.TransactionDate = &d
	}
	return data, true
}

// ==================== currency pattern ====================

type currencyPatternStrategy struct {
	cfg *Config
}

func (s *currencyPatternStrategy) Name() string { return StrategyCurrencyPattern }

func (s *currencyPatternStrategy) Attempt(doc *Document, diag *Diagnostics) (*Data, bool) {
	text := doc.Combined()
	for _, re := range currencyPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			amount, ok := parseAmount(m[1])
			if !ok || !acceptable(amount, decimal.Zero, s.cfg.AmountCeiling) {
				continue
			}
			return &Data{Amount: amount}, true
		}
	}
	diag.fail("currency_pattern: no currency amount")
	return nil, false
}

// ==================== labelled fields ====================

type labelledFieldsStrategy struct {
	cfg *Config
}

func (s *labelledFieldsStrategy) Name() string { return StrategyLabelledFields }

func (s *labelledFieldsStrategy) Attempt(doc *Document, diag *Diagnostics) (*Data, bool) {
	var data Data
	found := false
	for _, line := range doc.Lines() {
		if m := labelledAmountPattern.FindStringSubmatch(line); m != nil && !found {
			if amount, ok := parseAmount(m[1]); ok && acceptable(amount, decimal.Zero, s.cfg.AmountCeiling) {
				data.Amount = amount
				found = true
			}
		}
	}
	if !found {
		diag.fail("labelled_fields: no labelled amount")
		return nil, false
	}
	enrich(doc, &data)
	return &data, true
}

// enrich fills a missing sender name or account number from descriptive
// lines once some strategy has produced an amount.
func enrich(doc *Document, data *Data) {
	if data.SenderName == "" {
		data.SenderName = findSenderName(doc.Combined())
	}
	if data.AccountNumber == "" {
		for _, line := range doc.Lines() {
			if m := labelledAccountPattern.FindStringSubmatch(line); m != nil {
				data.AccountNumber = m[1]
				break
			}
		}
	}
}

func buildStrategies(cfg *Config, names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		switch n {
		case StrategyTemplate:
			out = append(out, &templateStrategy{cfg: cfg})
		case StrategyFixedWidth:
			out = append(out, &fixedWidthStrategy{cfg: cfg})
		case StrategyCurrencyPattern:
			out = append(out, &currencyPatternStrategy{cfg: cfg})
		case StrategyLabelledFields:
			out = append(out, &labelledFieldsStrategy{cfg: cfg})
		default:
			return nil, fmt.Errorf("unknown extraction strategy %q", n)
		}
	}
	return out, nil
}
