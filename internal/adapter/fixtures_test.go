package adapter

import (
	"sync/atomic"
	"time"
)

// Families used across the package tests.
type Reporter interface {
	Adapter
	Report() string
}

type Exporter interface {
	Adapter
	Export() string
}

type Named interface{ Label() string }

type Sized interface {
	Named
	Size() int
}

type Colored interface{ Color() string }

// Adaptables.
type Base struct{ Name string }

type Extra struct{ Tag string }

type Derived struct{ *Base }

type Sibling struct{ Base }

type Leaf struct{ Derived }

type Both struct {
	*Base
	*Extra
}

type Widget struct{}

func (Widget) Label() string { return "widget" }
func (Widget) Size() int     { return 3 }

type Tag struct{}

func (Tag) Label() string { return "tag" }

type Painted struct{}

func (Painted) Label() string { return "painted" }
func (Painted) Color() string { return "red" }

type Stranger struct{}

// Adapters.
var reporterFamily = FamilyOf[Reporter]()

type baseReporter struct{ owner *Base }

func (r *baseReporter) AdapterFamily() Family { return reporterFamily }
func (r *baseReporter) Report() string        { return "base:" + r.owner.Name }

type derivedReporter struct{ owner *Derived }

func (r *derivedReporter) AdapterFamily() Family { return reporterFamily }
func (r *derivedReporter) Report() string        { return "derived:" + r.owner.Name }

type extraReporter struct{ owner *Extra }

func (r *extraReporter) AdapterFamily() Family { return reporterFamily }
func (r *extraReporter) Report() string        { return "extra:" + r.owner.Tag }

type namedReporter struct{ owner Named }

func (r *namedReporter) AdapterFamily() Family { return reporterFamily }
func (r *namedReporter) Report() string        { return "named:" + r.owner.Label() }

type sizedReporter struct{ owner Sized }

func (r *sizedReporter) AdapterFamily() Family { return reporterFamily }
func (r *sizedReporter) Report() string        { return "sized:" + r.owner.Label() }

type coloredReporter struct{ owner Colored }

func (r *coloredReporter) AdapterFamily() Family { return reporterFamily }
func (r *coloredReporter) Report() string        { return "colored:" + r.owner.Color() }

type nullReporter struct{ owner any }

func (r *nullReporter) AdapterFamily() Family { return reporterFamily }
func (r *nullReporter) Report() string        { return "null" }

// wrongFamilyReporter claims to be an Exporter while satisfying Reporter.
type wrongFamilyReporter struct{}

func (wrongFamilyReporter) AdapterFamily() Family { return FamilyOf[Exporter]() }
func (wrongFamilyReporter) Report() string        { return "wrong" }

func newBaseReporter(b *Base) *baseReporter          { return &baseReporter{owner: b} }
func newDerivedReporter(d *Derived) *derivedReporter { return &derivedReporter{owner: d} }
func newExtraReporter(e *Extra) *extraReporter       { return &extraReporter{owner: e} }
func newNamedReporter(n Named) *namedReporter        { return &namedReporter{owner: n} }
func newSizedReporter(s Sized) *sizedReporter        { return &sizedReporter{owner: s} }
func newColoredReporter(c Colored) *coloredReporter  { return &coloredReporter{owner: c} }
func newNullReporter(owner any) *nullReporter        { return &nullReporter{owner: owner} }

type observation struct {
	family  Family
	outcome Outcome
}

type recordingObserver struct {
	calls atomic.Int64
	last  atomic.Pointer[observation]
}

func (o *recordingObserver) ObserveResolution(f Family, outcome Outcome, _ time.Duration) {
	o.calls.Add(1)
	o.last.Store(&observation{family: f, outcome: outcome})
}
