package validate

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

type Severity string

const (
	SevError   Severity = "error"
	SevWarning Severity = "warning"
)

// Issue codes.
const (
	CodeClassMismatch   = "DEVICE_001"
	CodeEntryMissing    = "DEVICE_002"
	CodeEntryUnexpected = "DEVICE_003"
	CodeMissingInDevice = "DEVICE_010"
	CodeNotSpecified    = "DEVICE_011"
	CodeFieldMismatch   = "DEVICE_020"
)

type Issue struct {
	Code     string   `json:"code" yaml:"code"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Class    string   `json:"class,omitempty" yaml:"class,omitempty"`
	Kind     string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Field    string   `json:"field,omitempty" yaml:"field,omitempty"`
}

type Report struct {
	Valid    bool    `json:"valid" yaml:"valid"`
	Errors   []Issue `json:"errors" yaml:"errors"`
	Warnings []Issue `json:"warnings" yaml:"warnings"`
}

// Lines renders every issue as one line, errors first.
func (r Report) Lines() []string {
	lines := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, i := range r.Errors {
		lines = append(lines, i.Message)
	}
	for _, i := range r.Warnings {
		lines = append(lines, i.Message)
	}
	return lines
}

// Commands every device serves regardless of its description.
var reserved = map[string]bool{"State": true, "Status": true, "Init": true}

// Compare checks device against expected entry by entry. With
// bidirectional set, members the device has but expected lacks are
// reported too.
func Compare(expected, device Document, bidirectional bool) Report {
	rep := Report{}

	for i, want := range expected {
		if i >= len(device) {
			rep.addError(Issue{
				Code:    CodeEntryMissing,
				Message: fmt.Sprintf("%s: specified class has no device entry", want.Class),
				Class:   want.Class,
			})
			continue
		}
		got := device[i]
		if want.Class != got.Class {
			rep.addError(Issue{
				Code:    CodeClassMismatch,
				Message: fmt.Sprintf("class mismatch: specified %q, device %q", want.Class, got.Class),
				Class:   want.Class,
			})
		}
		compareEntry(&rep, want, got, bidirectional)
	}
	if bidirectional {
		for _, got := range device[min(len(expected), len(device)):] {
			rep.addWarning(Issue{
				Code:    CodeEntryUnexpected,
				Message: fmt.Sprintf("%s: device class present in device but not specified", got.Class),
				Class:   got.Class,
			})
		}
	}

	rep.finalize()
	return rep
}

type member struct {
	fields map[string]string
}

func compareEntry(rep *Report, want, got Entry, bidirectional bool) {
	compareMembers(rep, want.Class, "command", commandMembers(want.Meta.Commands), commandMembers(got.Meta.Commands), bidirectional)
	compareMembers(rep, want.Class, "attribute", attributeMembers(want.Meta.Attributes), attributeMembers(got.Meta.Attributes), bidirectional)
	compareMembers(rep, want.Class, "property", propertyMembers(want.Meta.Properties), propertyMembers(got.Meta.Properties), bidirectional)
}

func compareMembers(rep *Report, class, kind string, want, got map[string]member, bidirectional bool) {
	for _, name := range sortedKeys(want) {
		w := want[name]
		g, ok := got[name]
		if !ok {
			rep.addError(Issue{
				Code:    CodeMissingInDevice,
				Message: fmt.Sprintf("%s: %s %q specified but missing in device", class, kind, name),
				Class:   class, Kind: kind, Name: name,
			})
			continue
		}
		for _, field := range sortedKeys(w.fields) {
			if sameValue(w.fields[field], g.fields[field]) {
				continue
			}
			rep.addError(Issue{
				Code: CodeFieldMismatch,
				Message: fmt.Sprintf("%s: %s %q %s differs: specified %q, device %q",
					class, kind, name, field, w.fields[field], g.fields[field]),
				Class: class, Kind: kind, Name: name, Field: field,
			})
		}
	}

	if !bidirectional {
		return
	}
	for _, name := range sortedKeys(got) {
		if _, ok := want[name]; ok {
			continue
		}
		rep.addWarning(Issue{
			Code:    CodeNotSpecified,
			Message: fmt.Sprintf("%s: %s %q present in device but not specified", class, kind, name),
			Class:   class, Kind: kind, Name: name,
		})
	}
}

// sameValue compares type names canonically when both parse.
func sameValue(a, b string) bool {
	if a == b {
		return true
	}
	ta, errA := types.ParseDataType(a)
	tb, errB := types.ParseDataType(b)
	return errA == nil && errB == nil && ta == tb
}

func commandMembers(list []CommandSpec) map[string]member {
	out := make(map[string]member, len(list))
	for _, c := range list {
		if reserved[c.Name] {
			continue
		}
		out[c.Name] = member{fields: map[string]string{"dtype_in": c.DtypeIn, "dtype_out": c.DtypeOut}}
	}
	return out
}

func attributeMembers(list []AttributeSpec) map[string]member {
	out := make(map[string]member, len(list))
	for _, a := range list {
		if reserved[a.Name] {
			continue
		}
		out[a.Name] = member{fields: map[string]string{"data_type": a.DataType}}
	}
	return out
}

func propertyMembers(list []PropertySpec) map[string]member {
	out := make(map[string]member, len(list))
	for _, p := range list {
		out[p.Name] = member{}
	}
	return out
}

func (r *Report) addError(i Issue) {
	if i.Severity == "" {
		i.Severity = SevError
	}
	r.Errors = append(r.Errors, i)
}

func (r *Report) addWarning(i Issue) {
	if i.Severity == "" {
		i.Severity = SevWarning
	}
	r.Warnings = append(r.Warnings, i)
}

func (r *Report) finalize() {
	sortIssues(r.Errors)
	sortIssues(r.Warnings)
	r.Valid = len(r.Errors) == 0
}

func sortIssues(list []Issue) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Code < b.Code
	})
}
