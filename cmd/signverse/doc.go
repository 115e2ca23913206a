// Command signverse cuts verse clips out of sign-language scripture
// recordings.
//
// It parses citations such as "Mt 5:3-7", resolves the verse markers of the
// chapter, and renders or reuses the matching clip. Other subcommands
// inspect markers, manage the clip cache, run the stale artifact collector,
// import book reference data, and check the installation (doctor, logs).
package main
