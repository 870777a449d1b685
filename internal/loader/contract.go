package loader

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tidwall/gjson"

	"drone/internal/errors"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// required lists the exports every unit must provide.
var required = []struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}{
	{"allocate", []api.ValueType{i32}, []api.ValueType{i32}},
	{"describe", nil, []api.ValueType{i64}},
	{"invoke", []api.ValueType{i64}, []api.ValueType{i64}},
}

// hostExports are the functions HostModule provides.
var hostExports = map[string]bool{"send_message": true, "send_error": true}

// checkContract inspects a compiled module without running it and
// returns every way it falls short of the capability ABI.
func checkContract(c wazero.CompiledModule) []string {
	var problems []string

	if _, ok := c.ExportedMemories()["memory"]; !ok {
		problems = append(problems, `missing exported memory "memory"`)
	}

	exports := c.ExportedFunctions()
	for _, r := range required {
		def, ok := exports[r.name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing export %s", r.name))
			continue
		}
		if !sameTypes(def.ParamTypes(), r.params) || !sameTypes(def.ResultTypes(), r.results) {
			problems = append(problems, fmt.Sprintf("export %s has signature %s, want %s",
				r.name, signature(def.ParamTypes(), def.ResultTypes()), signature(r.params, r.results)))
		}
	}

	for _, def := range c.ImportedFunctions() {
		mod, name, _ := def.Import()
		switch mod {
		case "wasi_snapshot_preview1":
		case HostModule:
			if !hostExports[name] {
				problems = append(problems, fmt.Sprintf("import %s.%s is not provided by the agent", mod, name))
			} else if !sameTypes(def.ParamTypes(), []api.ValueType{i64}) || len(def.ResultTypes()) != 0 {
				problems = append(problems, fmt.Sprintf("import %s.%s has signature %s, want (i64)",
					mod, name, signature(def.ParamTypes(), def.ResultTypes())))
			}
		default:
			problems = append(problems, fmt.Sprintf("import %s.%s cannot be resolved", mod, name))
		}
	}
	for _, def := range c.ImportedMemories() {
		mod, name, _ := def.Import()
		problems = append(problems, fmt.Sprintf("imported memory %s.%s cannot be resolved", mod, name))
	}
	return problems
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, ",")
	}
	if len(results) == 0 {
		return "(" + names(params) + ")"
	}
	return "(" + names(params) + ") " + names(results)
}

// ── manifest ─────────────────────────────────────────────────────────

// manifest is what a unit's describe export returns.
type manifest struct {
	Name     string
	Version  string
	ABI      string
	Commands []string
}

func parseManifest(data []byte) (manifest, error) {
	if !gjson.ValidBytes(data) {
		return manifest{}, errors.Load("describe", fmt.Errorf("manifest is not valid JSON"))
	}
	r := gjson.ParseBytes(data)
	m := manifest{
		Name:    strings.TrimSpace(r.Get("name").String()),
		Version: r.Get("version").String(),
		ABI:     r.Get("abi").String(),
	}
	if m.ABI == "" {
		m.ABI = "1"
	}
	for _, c := range r.Get("commands").Array() {
		m.Commands = append(m.Commands, strings.TrimSpace(c.String()))
	}
	return m, nil
}

func (m manifest) validate(constraint *semver.Constraints) error {
	var problems []string
	if m.Name == "" {
		problems = append(problems, "manifest has no name")
	}
	if len(m.Commands) == 0 {
		problems = append(problems, "manifest declares no commands")
	}
	for i, c := range m.Commands {
		if c == "" {
			problems = append(problems, fmt.Sprintf("command %d has no name", i))
		}
	}
	if v, err := semver.NewVersion(m.ABI); err != nil {
		problems = append(problems, fmt.Sprintf("abi %q is not a version", m.ABI))
	} else if !constraint.Check(v) {
		problems = append(problems, fmt.Sprintf("abi %s does not satisfy %s", m.ABI, ABIConstraint))
	}
	if len(problems) > 0 {
		return &errors.ContractError{Module: m.Name, Problems: problems}
	}
	return nil
}
