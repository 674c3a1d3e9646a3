package sales

import (
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale is used for audit messages when none is configured.
const DefaultLocale = "es-CO"

var sourceLabels = map[process.FundingSource]string{
	process.SourceDownPayment:      "cuota inicial",
	process.SourceBankCredit:       "crédito bancario",
	process.SourceHousingSubsidy:   "subsidio de vivienda",
	process.SourceCompensationFund: "subsidio de caja de compensación",
	process.SourceDiscountWaiver:   "condonación de saldo",
}

// auditMessages renders the human-readable audit lines shown to staff.
type auditMessages struct {
	p *message.Printer
}

func newAuditMessages(locale string) *auditMessages {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.MustParse(DefaultLocale)
	}
	return &auditMessages{p: message.NewPrinter(tag)}
}

func (m *auditMessages) money(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return "$" + m.p.Sprint(number.Decimal(f, number.MaxFractionDigits(2)))
}

func sourceLabel(s process.FundingSource) string {
	if l, ok := sourceLabels[s]; ok {
		return l
	}
	return string(s)
}

func (m *auditMessages) paymentRegistered(s process.FundingSource, amount decimal.Decimal) string {
	return m.p.Sprintf("Abono de %s registrado por %s", sourceLabel(s), m.money(amount))
}

func (m *auditMessages) stepCompletedByPayment(label string, amount decimal.Decimal) string {
	return m.p.Sprintf("Paso \"%s\" completado con el desembolso de %s", label, m.money(amount))
}

func (m *auditMessages) paymentEdited(s process.FundingSource, previous, next decimal.Decimal) string {
	return m.p.Sprintf("Abono de %s modificado de %s a %s", sourceLabel(s), m.money(previous), m.money(next))
}

func (m *auditMessages) paymentVoided(s process.FundingSource, amount decimal.Decimal, reason string) string {
	return m.p.Sprintf("Abono de %s por %s anulado. Motivo: %s", sourceLabel(s), m.money(amount), reason)
}

func (m *auditMessages) stepReopened(label, reason string) string {
	return m.p.Sprintf("Paso \"%s\" reabierto. Motivo: %s", label, reason)
}

func (m *auditMessages) paymentReinstated(s process.FundingSource, amount decimal.Decimal) string {
	return m.p.Sprintf("Anulación revertida: abono de %s por %s activo de nuevo", sourceLabel(s), m.money(amount))
}

func (m *auditMessages) stepRestored(label string) string {
	return m.p.Sprintf("Paso \"%s\" restablecido", label)
}

func (m *auditMessages) discountApplied(amount decimal.Decimal, reason string) string {
	if amount.IsZero() {
		return m.p.Sprintf("Descuento eliminado")
	}
	return m.p.Sprintf("Descuento de %s aplicado. Motivo: %s", m.money(amount), reason)
}

func (m *auditMessages) balanceWaived(amount decimal.Decimal, reason string) string {
	return m.p.Sprintf("Saldo pendiente de %s condonado. Motivo: %s", m.money(amount), reason)
}

func (m *auditMessages) stepCompleted(label string) string {
	return m.p.Sprintf("Paso \"%s\" completado", label)
}

func (m *auditMessages) stepModified(label, reason string) string {
	return m.p.Sprintf("Paso \"%s\" modificado. Motivo: %s", label, reason)
}

func (m *auditMessages) stepArchived(label string) string {
	return m.p.Sprintf("Paso \"%s\" archivado por cambio en el plan de financiación", label)
}

func (m *auditMessages) stepUnarchived(label string) string {
	return m.p.Sprintf("Paso \"%s\" reactivado por cambio en el plan de financiación", label)
}

func (m *auditMessages) planChanged(total decimal.Decimal) string {
	return m.p.Sprintf("Plan de financiación actualizado por un total de %s", m.money(total))
}

func (m *auditMessages) renunciationProcessed(motive string, refundable decimal.Decimal) string {
	return m.p.Sprintf("Renuncia registrada (%s). Valor a devolver: %s", motive, m.money(refundable))
}

func (m *auditMessages) refundClosed(amount decimal.Decimal, method string) string {
	return m.p.Sprintf("Devolución de %s pagada por %s", m.money(amount), method)
}

func (m *auditMessages) renunciationReversed() string {
	return m.p.Sprintf("Renuncia revertida; el cliente retoma su proceso")
}
