package observe_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fit"
	"github.com/MrWong99/waitlist/internal/fitcheck"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/pkg/eve"
)

const gunboatEFT = "[Rifter, Gunboat]\n200mm AutoCannon II\n200mm AutoCannon II\n"

// installTracer makes an in-memory tracer provider the global one for the
// duration of the test. Tests using it must not run in parallel.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func newService(t *testing.T) *fitcheck.Service {
	t.Helper()
	cat, err := catalog.NewMemStore(
		eve.Item{ID: 587, Name: "Rifter", GroupID: 25, CategoryID: eve.CategoryShip, Hull: &eve.HullSlots{High: 4, Mid: 3, Low: 3, Rig: 3}},
		eve.Item{ID: 2873, Name: "200mm AutoCannon II", GroupID: 55, CategoryID: 7, Slot: eve.SlotHigh},
	)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	store := doctrine.NewMemStore()
	if _, err := store.UpsertDoctrine(context.Background(), doctrine.Fit{
		Name: "Rifter Gunboat", ShipTypeID: 587, Category: doctrine.CategoryDPS,
		Items: map[eve.TypeID]int{587: 1, 2873: 2},
	}); err != nil {
		t.Fatalf("UpsertDoctrine: %v", err)
	}
	return fitcheck.New(cat, store)
}

func spanNamed(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no %q span among %d recorded", name, len(spans))
	return tracetest.SpanStub{}
}

func attr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, a := range s.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCheck_RecordsSpans(t *testing.T) {
	exp := installTracer(t)

	res, err := newService(t).Check(context.Background(), gunboatEFT)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	spans := exp.GetSpans()
	check := spanNamed(t, spans, observe.SpanCheck)
	fetch := spanNamed(t, spans, observe.SpanFetchReference)

	if got := check.SpanContext.TraceID().String(); res.CorrelationID != got {
		t.Errorf("Result.CorrelationID = %q, want the check trace %q", res.CorrelationID, got)
	}
	if fetch.Parent.SpanID() != check.SpanContext.SpanID() {
		t.Error("reference fetch is not a child of the check span")
	}
	if check.Status.Code == codes.Error || fetch.Status.Code == codes.Error {
		t.Errorf("approved check left a failed span: %v / %v", check.Status, fetch.Status)
	}

	wantCheck := map[attribute.Key]string{
		observe.AttrCheckID:  res.ID.String(),
		observe.AttrStatus:   string(fit.StatusApproved),
		observe.AttrCategory: string(doctrine.CategoryDPS),
	}
	for key, want := range wantCheck {
		if v, _ := attr(check, key); v.AsString() != want {
			t.Errorf("check span %s = %q, want %q", key, v.AsString(), want)
		}
	}
	if v, _ := attr(check, observe.AttrShip); v.AsInt64() != 587 {
		t.Errorf("check span %s = %d, want 587", observe.AttrShip, v.AsInt64())
	}
	if v, _ := attr(fetch, observe.AttrDoctrines); v.AsInt64() != 1 {
		t.Errorf("fetch span %s = %d, want 1", observe.AttrDoctrines, v.AsInt64())
	}
}

func TestCheck_JoinsCallerTrace(t *testing.T) {
	installTracer(t)

	ctx, parent := observe.StartSpan(context.Background(), "POST /v1/fits/check")
	defer parent.End()

	res, err := newService(t).Check(ctx, gunboatEFT)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if want := observe.CorrelationID(ctx); res.CorrelationID != want {
		t.Errorf("Result.CorrelationID = %q, want the request's %q", res.CorrelationID, want)
	}
}

func TestCheck_ParseFailureMarksSpan(t *testing.T) {
	exp := installTracer(t)

	if _, err := newService(t).Check(context.Background(), "[Rifter, Gunboat]\nBogus Blaster\n"); err == nil {
		t.Fatal("Check: expected a parse error")
	}

	spans := exp.GetSpans()
	check := spanNamed(t, spans, observe.SpanCheck)
	if check.Status.Code != codes.Error {
		t.Errorf("check span status = %v, want error", check.Status.Code)
	}
	if len(check.Events) == 0 || check.Events[0].Name != "exception" {
		t.Errorf("check span events = %v, want a recorded exception", check.Events)
	}
	if _, ok := attr(check, observe.AttrStatus); ok {
		t.Error("failed check carries a verdict status")
	}
	for _, s := range spans {
		if s.Name == observe.SpanFetchReference {
			t.Error("parse failure still fetched doctrines")
		}
	}
}

func TestLogger_TagsCheckAndTrace(t *testing.T) {
	installTracer(t)
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	res, err := newService(t).Check(context.Background(), gunboatEFT)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	var line string
	for l := range strings.Lines(buf.String()) {
		if strings.Contains(l, `msg="fit checked"`) {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("no fit checked line in %q", buf.String())
	}
	for _, want := range []string{
		"check_id=" + res.ID.String(),
		"trace_id=" + res.CorrelationID,
		"span_id=",
		"status=" + string(fit.StatusApproved),
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

func TestLogger_Untagged(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	observe.Logger(context.Background()).Info("catalog reloaded")
	for _, key := range []string{"check_id", "trace_id", "span_id"} {
		if strings.Contains(buf.String(), key) {
			t.Errorf("untraced log line carries %s: %s", key, buf.String())
		}
	}
	if got := observe.CheckID(observe.WithCheckID(context.Background(), "abc")); got != "abc" {
		t.Errorf("CheckID = %q, want abc", got)
	}
}
