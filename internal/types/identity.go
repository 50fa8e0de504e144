package types

const sourcePrefix = "source"

func SourceIdentity(name string) string {
	return sourcePrefix + "[" + name + "]"
}

func StageIdentity(owner string, stage string) string {
	return owner + "[" + stage + "]"
}

// Identity is a parsed dependency reference.
type Identity struct {
	// Kind is UnitKindSource for source[name], UnitKindStage for
	// parent[stage] and empty for a bare name.
	Kind  UnitKind
	Name  string
	Stage string
}

func (i Identity) String() string {
	switch i.Kind {
	case UnitKindSource:
		return SourceIdentity(i.Name)
	case UnitKindStage:
		return StageIdentity(i.Name, i.Stage)
	default:
		return i.Name
	}
}
