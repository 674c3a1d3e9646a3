package process

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// EvidenceRequirement names a document a completed step must carry.
type EvidenceRequirement struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// StepDefinition is an immutable catalog entry.
type StepDefinition struct {
	Key              StepKey               `yaml:"key" json:"key"`
	Label            string                `yaml:"label" json:"label"`
	WhenSources      []FundingSource       `yaml:"when_sources" json:"when_sources,omitempty"`
	RequiredEvidence []EvidenceRequirement `yaml:"evidence" json:"required_evidence"`
	IsMilestone      bool                  `yaml:"milestone" json:"is_milestone"`
	IsAutomatic      bool                  `yaml:"automatic" json:"is_automatic"`
}

// IsApplicable reports whether the step is part of the process for plan.
// Steps with no WhenSources always apply; otherwise any listed source must
// be applied.
func (d StepDefinition) IsApplicable(plan FinancialPlan) bool {
	if len(d.WhenSources) == 0 {
		return true
	}
	for _, s := range d.WhenSources {
		if plan.Applies(s) {
			return true
		}
	}
	return false
}

// SourceFlow links a funding source to the request and disbursement steps
// that gate and record its payment.
type SourceFlow struct {
	Source           FundingSource `yaml:"source" json:"source"`
	RequestStep      StepKey       `yaml:"request_step" json:"request_step"`
	DisbursementStep StepKey       `yaml:"disbursement_step" json:"disbursement_step"`
	EvidenceID       string        `yaml:"evidence_id" json:"evidence_id"`
}

// CatalogDefinition is the raw, unvalidated catalog document.
type CatalogDefinition struct {
	AnchorStep    StepKey          `yaml:"anchor_step"`
	InvoiceStep   StepKey          `yaml:"invoice_step"`
	DirectSources []FundingSource  `yaml:"direct_sources"`
	Flows         []SourceFlow     `yaml:"flows"`
	Steps         []StepDefinition `yaml:"steps"`
}

// Catalog is the validated, ordered step catalog together with the typed
// source flow table. It is safe for concurrent use.
type Catalog struct {
	steps    []StepDefinition
	index    map[StepKey]int
	anchor   StepKey
	invoice  StepKey
	flows    map[FundingSource]SourceFlow
	direct   map[FundingSource]bool
	requests map[StepKey]SourceFlow
	disburse map[StepKey]SourceFlow
}

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid step catalog")

// NewCatalog validates def and builds a Catalog. All problems found are
// reported together.
func NewCatalog(def CatalogDefinition) (*Catalog, error) {
	c := &Catalog{
		steps:    make([]StepDefinition, len(def.Steps)),
		index:    make(map[StepKey]int, len(def.Steps)),
		anchor:   def.AnchorStep,
		invoice:  def.InvoiceStep,
		flows:    make(map[FundingSource]SourceFlow, len(def.Flows)),
		direct:   make(map[FundingSource]bool, len(def.DirectSources)),
		requests: make(map[StepKey]SourceFlow, len(def.Flows)),
		disburse: make(map[StepKey]SourceFlow, len(def.Flows)),
	}
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if len(def.Steps) == 0 {
		fail("catalog has no steps")
	}
	for i, st := range def.Steps {
		if st.Key == "" {
			fail("step %d has no key", i)
			continue
		}
		if _, dup := c.index[st.Key]; dup {
			fail("duplicate step key %q", st.Key)
			continue
		}
		for _, s := range st.WhenSources {
			if !s.IsPlanSource() {
				fail("step %q: unknown source %q", st.Key, s)
			}
		}
		seen := make(map[string]bool, len(st.RequiredEvidence))
		for _, ev := range st.RequiredEvidence {
			if ev.ID == "" || seen[ev.ID] {
				fail("step %q: empty or duplicate evidence id %q", st.Key, ev.ID)
			}
			seen[ev.ID] = true
		}
		c.index[st.Key] = i
		c.steps[i] = st
	}

	anchorPos, okAnchor := c.index[def.AnchorStep]
	if !okAnchor {
		fail("anchor step %q is not in the catalog", def.AnchorStep)
	} else if !c.steps[anchorPos].IsMilestone {
		fail("anchor step %q must be a milestone", def.AnchorStep)
	}
	invoicePos, okInvoice := c.index[def.InvoiceStep]
	if !okInvoice {
		fail("invoice step %q is not in the catalog", def.InvoiceStep)
	} else if invoicePos != len(def.Steps)-1 {
		fail("invoice step %q must be the last step", def.InvoiceStep)
	}

	for _, s := range def.DirectSources {
		if !s.IsPlanSource() {
			fail("direct source %q is not a plan source", s)
		}
		c.direct[s] = true
	}

	for _, f := range def.Flows {
		if !f.Source.IsPlanSource() {
			fail("flow for unknown source %q", f.Source)
			continue
		}
		if _, dup := c.flows[f.Source]; dup || c.direct[f.Source] {
			fail("source %q is mapped more than once", f.Source)
			continue
		}
		reqPos, okReq := c.index[f.RequestStep]
		disPos, okDis := c.index[f.DisbursementStep]
		if !okReq {
			fail("source %q: request step %q is not in the catalog", f.Source, f.RequestStep)
		}
		if !okDis {
			fail("source %q: disbursement step %q is not in the catalog", f.Source, f.DisbursementStep)
		}
		if okReq && okDis {
			req, dis := c.steps[reqPos], c.steps[disPos]
			if reqPos >= disPos {
				fail("source %q: request step must precede its disbursement step", f.Source)
			}
			if okAnchor && reqPos <= anchorPos {
				fail("source %q: request step must come after the anchor step", f.Source)
			}
			if req.IsAutomatic {
				fail("source %q: request step %q must not be automatic", f.Source, req.Key)
			}
			if !dis.IsAutomatic {
				fail("source %q: disbursement step %q must be automatic", f.Source, dis.Key)
			}
			if !requiresEvidence(dis, f.EvidenceID) {
				fail("source %q: disbursement step %q does not require evidence %q", f.Source, dis.Key, f.EvidenceID)
			}
			if !appliesOnlyTo(req, f.Source) || !appliesOnlyTo(dis, f.Source) {
				fail("source %q: flow steps must apply only when the source does", f.Source)
			}
			if _, dup := c.requests[f.RequestStep]; dup {
				fail("request step %q serves more than one source", f.RequestStep)
			}
			if _, dup := c.disburse[f.DisbursementStep]; dup {
				fail("disbursement step %q serves more than one source", f.DisbursementStep)
			}
		}
		c.flows[f.Source] = f
		c.requests[f.RequestStep] = f
		c.disburse[f.DisbursementStep] = f
	}

	for _, s := range PlanSources {
		if _, ok := c.flows[s]; !ok && !c.direct[s] {
			fail("source %q has neither a flow nor a direct declaration", s)
		}
	}
	for _, st := range c.steps {
		if _, ok := c.disburse[st.Key]; st.IsAutomatic && !ok {
			fail("automatic step %q is not the disbursement step of any flow", st.Key)
		}
	}
	if okInvoice && (c.steps[invoicePos].IsAutomatic || c.steps[invoicePos].IsMilestone) {
		fail("invoice step %q must be a plain manual step", def.InvoiceStep)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(problems...))
	}
	return c, nil
}

func requiresEvidence(d StepDefinition, id string) bool {
	for _, ev := range d.RequiredEvidence {
		if ev.ID == id {
			return true
		}
	}
	return false
}

func appliesOnlyTo(d StepDefinition, s FundingSource) bool {
	return len(d.WhenSources) == 1 && d.WhenSources[0] == s
}

// ParseCatalog decodes a YAML catalog document and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var def CatalogDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidCatalog, err)
	}
	return NewCatalog(def)
}

// LoadCatalog reads a catalog file. An empty path loads the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalogYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read step catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog. It panics if the embedded
// document is invalid, which is a build defect.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Steps returns the ordered step definitions.
func (c *Catalog) Steps() []StepDefinition {
	out := make([]StepDefinition, len(c.steps))
	copy(out, c.steps)
	return out
}

// Step returns the definition for key.
func (c *Catalog) Step(key StepKey) (StepDefinition, bool) {
	i, ok := c.index[key]
	if !ok {
		return StepDefinition{}, false
	}
	return c.steps[i], true
}

// Position returns the catalog position of key, or -1.
func (c *Catalog) Position(key StepKey) int {
	if i, ok := c.index[key]; ok {
		return i
	}
	return -1
}

// AnchorStep is the milestone that unlocks every disbursement request.
func (c *Catalog) AnchorStep() StepKey { return c.anchor }

// InvoiceStep is the final invoice step.
func (c *Catalog) InvoiceStep() StepKey { return c.invoice }

// Flow returns the flow for a source. Direct sources have none.
func (c *Catalog) Flow(s FundingSource) (SourceFlow, bool) {
	f, ok := c.flows[s]
	return f, ok
}

// Flows returns every source flow in catalog order of the request step.
func (c *Catalog) Flows() []SourceFlow {
	out := make([]SourceFlow, 0, len(c.flows))
	for _, st := range c.steps {
		if f, ok := c.requests[st.Key]; ok {
			out = append(out, f)
		}
	}
	return out
}

// RequestFlow returns the flow whose request step is key.
func (c *Catalog) RequestFlow(key StepKey) (SourceFlow, bool) {
	f, ok := c.requests[key]
	return f, ok
}

// DisbursementFlow returns the flow whose disbursement step is key.
func (c *Catalog) DisbursementFlow(key StepKey) (SourceFlow, bool) {
	f, ok := c.disburse[key]
	return f, ok
}
