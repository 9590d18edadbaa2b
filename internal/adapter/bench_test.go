package adapter

import (
	"testing"
)

func benchResolver(b *testing.B) *Resolver {
	res, _ := newTestResolver(b,
		Declare[Reporter](newBaseReporter),
		Declare[Reporter](newDerivedReporter),
		Declare[Reporter](newNamedReporter),
		DeclareFallback[Reporter](newNullReporter),
	)
	return res
}

func BenchmarkResolve_Concrete(b *testing.B) {
	res := benchResolver(b)
	owner := &Derived{Base: &Base{Name: "d"}}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := res.Resolve(owner, reporterFamily); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolve_Fallback(b *testing.B) {
	res := benchResolver(b)
	owner := &Stranger{}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := res.Resolve(owner, reporterFamily); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCache_Adapt(b *testing.B) {
	res := benchResolver(b)
	cache := NewCache(&Base{Name: "b"}, res)
	if _, err := cache.Adapt(reporterFamily); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := cache.Adapt(reporterFamily); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
