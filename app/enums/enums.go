// Package enums provides type-safe enumeration types for the tracker.
//
// The enum types are defined as unexported integer types in this file and the go:generate
// directives invoke the go-pkgz/enum generator to create the exported types with String,
// Parse*, text marshaling and sql Scan/Value methods in separate *_enum.go files.
//
// Usage:
//
//	status := enums.StatusInterview
//	fmt.Println(status.String()) // "interview"
//
//	parsed, err := enums.ParseStatus("offer")
//	if err != nil {
//	    // handle invalid input
//	}
//
// To regenerate the enum types after modifications:
//
//	go generate ./app/enums
package enums

//go:generate go run github.com/go-pkgz/enum@latest -type status -lower
//go:generate go run github.com/go-pkgz/enum@latest -type theme -lower

// status is the stage of a job application.
// Use the exported Status type and its constants in actual code.
type status int

const (
	statusApplied status = iota
	statusScreening
	statusInterview
	statusOffer
	statusRejected
	statusAccepted
)

// theme represents UI themes.
// Use the exported Theme type and its constants in actual code.
type theme int

const (
	themeLight theme = iota
	themeDark
)
