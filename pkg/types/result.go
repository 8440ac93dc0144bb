package types

// Location is one navigation answer: a range inside an indexed file
type Location struct {
	Path  string
	Range Range
	Role  Role
}

// SymbolResult is a symbol located through the persistent index
type SymbolResult struct {
	Usr           Usr
	Kind          SymbolKind
	QualifiedName string
	ShortName     string
	Definition    *Location // Nullable - only forward-declared so far
	Declarations  []Location
	References    []Location
}

// Validate checks if the location is usable
func (l *Location) Validate() error {
	if l.Path == "" {
		return ErrInvalidLocation
	}
	return l.Range.Validate()
}

// Validate checks if the symbol result is usable
func (sr *SymbolResult) Validate() error {
	if !sr.Usr.Valid() {
		return ErrEmptyUsr
	}
	if err := sr.Kind.ValidateKind(); err != nil {
		return err
	}
	if sr.Definition != nil {
		if err := sr.Definition.Validate(); err != nil {
			return err
		}
	}
	return nil
}
