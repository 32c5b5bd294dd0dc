package hydrate

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/manifest"
	"github.com/GoCodeAlone/stackplan/schema"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Service: "orders",
		Owner:   "team-orders",
		Environments: map[string]map[string]any{
			"dev":  {"logLevel": "debug", "replicas": 1, "debug": true},
			"prod": {"logLevel": "info", "replicas": 3, "debug": false},
		},
		Components: []manifest.ComponentSpec{
			{
				Name: "api",
				Type: "service",
				Config: map[string]any{
					"image":    "orders-api:1.2.3",
					"logLevel": "${env.logLevel}",
					"replicas": "${env.replicas}",
				},
			},
		},
	}
}

func hydrateOpts() Options {
	return Options{Registry: schema.NewDefaultTypeRegistry(nil)}
}

func TestHydrateResolvesTokens(t *testing.T) {
	res, err := Hydrate(context.Background(), testManifest(), "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	api := res.Manifest.Component("api")
	if api == nil {
		t.Fatal("component api missing from result")
	}
	if api.Config["logLevel"] != "info" {
		t.Errorf("expected logLevel=info, got %v", api.Config["logLevel"])
	}
	// A whole-scalar token keeps the resolved value's type.
	if api.Config["replicas"] != 3 {
		t.Errorf("expected typed replicas=3, got %v (%T)", api.Config["replicas"], api.Config["replicas"])
	}
	if res.Framework != compliance.FrameworkCommercial {
		t.Errorf("expected commercial default, got %q", res.Framework)
	}
}

func TestHydrateBooleanTokenKeepsType(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["verbose"] = "${env.debug}"

	res, err := Hydrate(context.Background(), m, "dev", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	got := res.Manifest.Component("api").Config["verbose"]
	if got != true {
		t.Errorf("expected boolean true, got %v (%T)", got, got)
	}
}

func TestHydrateEnvironmentComparisonExpression(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["cdn"] = `${environment == "prod"}`

	for _, tt := range []struct {
		env  string
		want bool
	}{
		{"prod", true},
		{"dev", false},
	} {
		t.Run(tt.env, func(t *testing.T) {
			res, err := Hydrate(context.Background(), m, tt.env, hydrateOpts())
			if err != nil {
				t.Fatalf("Hydrate failed: %v", err)
			}
			got := res.Manifest.Component("api").Config["cdn"]
			if got != tt.want {
				t.Errorf("expected %v, got %v (%T)", tt.want, got, got)
			}
		})
	}
}

func TestHydrateEmbeddedTokenStringifies(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["banner"] = "level=${env.logLevel} replicas=${env.replicas}"

	res, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	got := res.Manifest.Component("api").Config["banner"]
	if got != "level=info replicas=3" {
		t.Errorf("got %v", got)
	}
}

func TestHydrateUndefinedKeyNamesKey(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["queueURL"] = "${env.queueUrl}"

	_, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	var ue *UnresolvedInterpolationError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnresolvedInterpolationError, got %v", err)
	}
	if ue.Key != "queueUrl" {
		t.Errorf("expected missing key to be named, got %q", ue.Key)
	}
	if !strings.Contains(err.Error(), "queueUrl") {
		t.Errorf("expected key in message, got %q", err.Error())
	}
	if ue.Component != "api" {
		t.Errorf("expected component recorded on the error, got %q", ue.Component)
	}
	if !strings.Contains(err.Error(), `component "api"`) {
		t.Errorf("expected component attribution, got %q", err.Error())
	}
}

func TestHydrateUnknownEnvironment(t *testing.T) {
	_, err := Hydrate(context.Background(), testManifest(), "staging", hydrateOpts())
	var ue *UnknownEnvironmentError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnknownEnvironmentError, got %v", err)
	}
	if !reflect.DeepEqual(ue.Declared, []string{"dev", "prod"}) {
		t.Errorf("expected declared environments listed, got %v", ue.Declared)
	}
}

func TestHydratePerEnvMapSelection(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["memory"] = map[string]any{
		"dev":  "256Mi",
		"prod": "1Gi",
	}

	res, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if got := res.Manifest.Component("api").Config["memory"]; got != "1Gi" {
		t.Errorf("expected 1Gi, got %v", got)
	}
}

func TestHydratePerEnvMapMissingEntryIsStrict(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["memory"] = map[string]any{
		"dev":     "256Mi",
		"default": "512Mi",
	}

	// Without fallback enabled the missing prod entry is a hard error.
	_, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	var ue *UnresolvedInterpolationError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnresolvedInterpolationError, got %v", err)
	}

	// With fallback enabled the default entry is selected.
	opts := hydrateOpts()
	opts.AllowEnvFallback = true
	res, err := Hydrate(context.Background(), m, "prod", opts)
	if err != nil {
		t.Fatalf("Hydrate with fallback failed: %v", err)
	}
	if got := res.Manifest.Component("api").Config["memory"]; got != "512Mi" {
		t.Errorf("expected fallback 512Mi, got %v", got)
	}
}

func TestHydrateScalarPerEnvConfigBlock(t *testing.T) {
	// The whole config block is a per-environment map with scalar
	// entries, so environment selection yields a scalar where a mapping
	// is required.
	m := &manifest.Manifest{
		Service: "orders",
		Owner:   "team-orders",
		Environments: map[string]map[string]any{
			"dev":  {},
			"prod": {},
		},
		Components: []manifest.ComponentSpec{
			{
				Name: "jobs",
				Type: "queue",
				Config: map[string]any{
					"dev":  1,
					"prod": 2,
				},
			},
		},
	}

	_, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err == nil {
		t.Fatal("expected an error for a scalar config block")
	}
	var ce *NonMappingConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected NonMappingConfigError, got %v", err)
	}
	if ce.Block != "config" {
		t.Errorf("expected config block named, got %q", ce.Block)
	}
	if ce.Component != "jobs" {
		t.Errorf("expected component recorded on the error, got %q", ce.Component)
	}
	if !strings.Contains(err.Error(), `component "jobs"`) {
		t.Errorf("expected component attribution, got %q", err.Error())
	}
}

func TestHydrateOrdinaryMapIsNotPerEnvMap(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["limits"] = map[string]any{
		"cpu":    "500m",
		"memory": "1Gi",
	}

	res, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	got := res.Manifest.Component("api").Config["limits"]
	want := map[string]any{"cpu": "500m", "memory": "1Gi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected map untouched, got %v", got)
	}
}

func TestHydrateMergePrecedence(t *testing.T) {
	m := testManifest()
	m.ComplianceFramework = "high"
	m.Components = append(m.Components, manifest.ComponentSpec{
		Name: "db",
		Type: "database",
		Config: map[string]any{
			"storageGB": 100,
		},
		Overrides: map[string]any{
			"storageGB": 200,
		},
		Policy: map[string]any{
			"encrypted": true,
		},
	})

	res, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	db := res.Manifest.Component("db")

	// Registry default survives where nothing overrides it.
	if db.Config["engine"] != "postgres" {
		t.Errorf("expected registry default engine, got %v", db.Config["engine"])
	}
	// Compliance default (high): multiAZ forced on.
	if db.Config["multiAZ"] != true {
		t.Errorf("expected compliance default multiAZ=true, got %v", db.Config["multiAZ"])
	}
	// Overrides beat config.
	if db.Config["storageGB"] != 200 {
		t.Errorf("expected overrides to win over config, got %v", db.Config["storageGB"])
	}
	// Environment defaults land as a merge layer.
	if db.Config["logLevel"] != "info" {
		t.Errorf("expected env default logLevel, got %v", db.Config["logLevel"])
	}
}

func TestHydratePolicyIsNonOverridable(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["public"] = true
	m.Components[0].Policy = map[string]any{"public": false}

	res, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if got := res.Manifest.Component("api").Config["public"]; got != false {
		t.Errorf("expected policy to win, got %v", got)
	}
}

func TestHydrateDoesNotMutateInput(t *testing.T) {
	m := testManifest()
	if _, err := Hydrate(context.Background(), m, "prod", hydrateOpts()); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if m.Components[0].Config["logLevel"] != "${env.logLevel}" {
		t.Errorf("input manifest was mutated: %v", m.Components[0].Config["logLevel"])
	}
	if m.ComplianceFramework != "" {
		t.Errorf("input framework was mutated: %q", m.ComplianceFramework)
	}
}

func TestHydrateEmptyFrameworkResolvesToCommercial(t *testing.T) {
	res, err := Hydrate(context.Background(), testManifest(), "dev", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if res.Manifest.ComplianceFramework != "commercial" {
		t.Errorf("expected effective framework recorded, got %q", res.Manifest.ComplianceFramework)
	}
}

func TestHydrateNoTokensRemain(t *testing.T) {
	m := testManifest()
	m.Components[0].Config["nested"] = map[string]any{
		"inner": []any{"${env.logLevel}", map[string]any{"deep": "${env.replicas}"}},
	}

	res, err := Hydrate(context.Background(), m, "prod", hydrateOpts())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	for i := range res.Manifest.Components {
		if token := findToken(res.Manifest.Components[i].Config); token != "" {
			t.Errorf("token %q survived hydration", token)
		}
	}
}

func TestHydrateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Hydrate(ctx, testManifest(), "prod", hydrateOpts()); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestHydrateRequiresRegistry(t *testing.T) {
	if _, err := Hydrate(context.Background(), testManifest(), "prod", Options{}); err == nil {
		t.Fatal("expected missing registry error")
	}
}

func TestDeepMergeSemantics(t *testing.T) {
	base := map[string]any{
		"a": 1,
		"nested": map[string]any{
			"keep":     "base",
			"override": "base",
		},
		"list": []any{1, 2, 3},
	}
	override := map[string]any{
		"nested": map[string]any{
			"override": "new",
			"added":    true,
		},
		"list": []any{9},
	}

	got := deepMerge(base, override)

	if got["a"] != 1 {
		t.Errorf("expected base scalar preserved, got %v", got["a"])
	}
	nested := got["nested"].(map[string]any)
	if nested["keep"] != "base" || nested["override"] != "new" || nested["added"] != true {
		t.Errorf("unexpected nested merge: %v", nested)
	}
	if !reflect.DeepEqual(got["list"], []any{9}) {
		t.Errorf("lists must be replaced wholesale, got %v", got["list"])
	}
}

func TestDeepMergeIdempotent(t *testing.T) {
	merged := mergeLayers(
		map[string]any{"a": 1, "nested": map[string]any{"x": "y"}},
		map[string]any{"b": 2},
	)
	again := deepMerge(merged, merged)
	if !reflect.DeepEqual(merged, again) {
		t.Errorf("merging a merged config with itself changed it:\n%v\n%v", merged, again)
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"nested": map[string]any{"a": 1}}
	override := map[string]any{"nested": map[string]any{"b": 2}}

	deepMerge(base, override)

	if len(base["nested"].(map[string]any)) != 1 {
		t.Errorf("base was mutated: %v", base)
	}
	if len(override["nested"].(map[string]any)) != 1 {
		t.Errorf("override was mutated: %v", override)
	}
}
