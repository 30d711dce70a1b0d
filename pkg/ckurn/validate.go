package ckurn

import "fmt"

// ValidationResult is the uniform report returned by every Validate*
// function. Grammar validation is a report, not a failure: it never
// returns a Go error, and Validate* never panics.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

func ok() ValidationResult {
	return ValidationResult{Valid: true}
}

func fail(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Validate validates a Kernel URN: well-formed grammar, valid kernel
// name, valid version, and (if present) a known stage.
func Validate(urn string) ValidationResult {
	p, err := Parse(urn)
	if err != nil {
		return fail(err.Error())
	}
	return ValidateKernel(p)
}

// ValidateKernel validates an already-parsed Kernel URN.
func ValidateKernel(p *ParsedKernelUrn) ValidationResult {
	var errs []string
	if !ValidKernelName(p.Kernel) {
		errs = append(errs, fmt.Sprintf("invalid kernel name %q", p.Kernel))
	}
	if !ValidVersion(p.Version) {
		errs = append(errs, fmt.Sprintf("invalid version %q", p.Version))
	}
	if p.Stage != "" {
		if _, known := stagePaths[Stage(p.Stage)]; !known {
			errs = append(errs, fmt.Sprintf("unknown stage %q", p.Stage))
		}
	}
	if len(errs) > 0 {
		return fail(errs...)
	}
	return ok()
}

// ValidateEdge validates an Edge URN: well-formed grammar, valid
// source/target kernel names, and a predicate drawn from the fixed
// vocabulary.
func ValidateEdge(urn string) ValidationResult {
	p, err := ParseEdgeUrn(urn)
	if err != nil {
		return fail(err.Error())
	}
	var errs []string
	if !IsValidPredicate(p.Predicate) {
		errs = append(errs, fmt.Sprintf("unknown predicate %q", p.Predicate))
	}
	if !ValidKernelName(p.Source) {
		errs = append(errs, fmt.Sprintf("invalid source kernel name %q", p.Source))
	}
	if !ValidKernelName(p.Target) {
		errs = append(errs, fmt.Sprintf("invalid target kernel name %q", p.Target))
	}
	if p.Version != "" && !ValidVersion(p.Version) {
		errs = append(errs, fmt.Sprintf("invalid version %q", p.Version))
	}
	if len(errs) > 0 {
		return fail(errs...)
	}
	return ok()
}
