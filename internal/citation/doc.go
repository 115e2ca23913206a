// Package citation parses and formats human scripture references.
//
// A Parser is bound to one language edition through an AliasTable built from
// that edition's book names. Parsing is purely syntactic plus alias
// resolution: chapter and verse bounds are checked separately with
// CheckChapter and CheckVerses once the caller knows what exists for the
// chapter. Format produces the compact range notation ("2 Timoteo 3:1-3, 5, 6")
// that Parse accepts back.
package citation
