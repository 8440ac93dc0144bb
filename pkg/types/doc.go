// Package types provides shared type definitions for the ccindex symbol index.
//
// This package defines the vocabulary spoken at the parser boundary and by
// every consumer of the index: source positions and ranges, symbol kinds,
// reference roles, USRs and the parser event stream.
//
// # Positions
//
// Positions are zero-based line/column pairs. Ranges are half-open:
//
//	r := types.NewRange(3, 4, 9) // line 4, columns 5..9
//	r.Contains(types.Position{Line: 3, Column: 8}) // true
//
// # Identity
//
// A Usr (Universal Symbol Reference) is the parser's stable string identity
// for a declaration. It is the only identity that survives across files and
// parses; per-file integer ids are derived from it by the index.
//
// # Event Stream
//
// A frontend turns one translation unit into a ParseResult whose Events are
// applied in order by the index builder:
//
//	types.Event{Op: types.OpDeclaration, Usr: "c:@F@f#", Kind: types.KindFunc,
//	    Name: "f", File: "/src/h.h", Range: spell, Extent: extent}
//	types.Event{Op: types.OpReference, Usr: "c:@F@f#", Kind: types.KindFunc,
//	    Role: types.RoleCall, File: "/src/main.cc", Container: mainFn}
//
// Roles are bit-combinable:
//
//	role := types.RoleCall | types.RoleRead
//	role.Has(types.RoleCall) // true
package types
