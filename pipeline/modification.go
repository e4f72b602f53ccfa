package pipeline

import "github.com/llmcore/llmcore/plug"

// ModKind is the tag of a Pipeline Modification.
type ModKind string

const (
	ModReplace     ModKind = "replace"
	ModRemove      ModKind = "remove"
	ModAppend      ModKind = "append"
	ModPrepend     ModKind = "prepend"
	ModInsertBefor ModKind = "insert_before"
	ModInsertAfter ModKind = "insert_after"
	ModCustom      ModKind = "custom"
)

// Modification is one entry of a ChatBuilder's deferred modification list.
// Exactly the fields relevant to Kind are meaningful.
type Modification struct {
	Kind ModKind

	// Target/Anchor identify an existing stage by Plug name, for replace,
	// remove, insert_before, and insert_after.
	Target string
	Anchor string

	// Plug/Opts carry the stage being added or substituted in, for
	// replace, append, prepend, insert_before, and insert_after.
	Plug plug.Plug
	Opts any

	// Pipeline carries the wholesale replacement for ModCustom.
	Pipeline []plug.Spec
}

// Compile folds base under mods in declaration order. If any ModCustom
// is present, the first one's pipeline is returned as is: the base and
// every other modification, before or after it, are ignored.
func Compile(base []plug.Spec, mods []Modification) []plug.Spec {
	for _, m := range mods {
		if m.Kind == ModCustom {
			return append([]plug.Spec(nil), m.Pipeline...)
		}
	}

	stages := append([]plug.Spec(nil), base...)
	for _, m := range mods {
		stages = applyOne(stages, m)
	}
	return stages
}

func indexOf(stages []plug.Spec, name string) int {
	for i, s := range stages {
		if s.Plug.Name() == name {
			return i
		}
	}
	return -1
}

func applyOne(stages []plug.Spec, m Modification) []plug.Spec {
	switch m.Kind {
	case ModReplace:
		if i := indexOf(stages, m.Target); i >= 0 {
			stages[i] = plug.Spec{Plug: m.Plug, Opts: m.Opts}
		}
		return stages

	case ModRemove:
		if i := indexOf(stages, m.Target); i >= 0 {
			return append(stages[:i], stages[i+1:]...)
		}
		return stages

	case ModAppend:
		return append(stages, plug.Spec{Plug: m.Plug, Opts: m.Opts})

	case ModPrepend:
		return append([]plug.Spec{{Plug: m.Plug, Opts: m.Opts}}, stages...)

	case ModInsertBefor:
		if i := indexOf(stages, m.Anchor); i >= 0 {
			out := make([]plug.Spec, 0, len(stages)+1)
			out = append(out, stages[:i]...)
			out = append(out, plug.Spec{Plug: m.Plug, Opts: m.Opts})
			out = append(out, stages[i:]...)
			return out
		}
		return stages

	case ModInsertAfter:
		if i := indexOf(stages, m.Anchor); i >= 0 {
			out := make([]plug.Spec, 0, len(stages)+1)
			out = append(out, stages[:i+1]...)
			out = append(out, plug.Spec{Plug: m.Plug, Opts: m.Opts})
			out = append(out, stages[i+1:]...)
			return out
		}
		return stages

	default:
		return stages
	}
}
