package policy

// GatedActions are the actions the built-in gates apply to. They are
// exposed to policies as data.hu.gated_actions.
var GatedActions = []string{"finish_release", "promote"}

// BuiltinPolicies returns the policies compiled into hu.
func BuiltinPolicies() []Policy {
	return []Policy{
		ciStatusPolicy(),
		productionConfigPolicy(),
		releaseTagPolicy(),
	}
}

// ciStatusPolicy blocks deploys while CI reports a failure for
// origin/develop.
func ciStatusPolicy() Policy {
	return Policy{
		Name:        "ci-status",
		Description: "Blocks finish and promote while CI reports failure for origin/develop",
		Severity:    SeverityError,
		Enabled:     true,
		Source:      SourceBuiltin,
		Rego: `package hu.policies.ci

import rego.v1

deny contains violation if {
	input.action in data.hu.gated_actions
	input.ci.state in {"failure", "error"}
	count(input.ci.failures) > 0
	violation := {
		"message": sprintf("CI FAILURE on origin/develop: %s", [concat(", ", input.ci.failures)]),
		"remediation": "Fix the build on develop, then refresh",
	}
}

deny contains violation if {
	input.action in data.hu.gated_actions
	input.ci.state in {"failure", "error"}
	count(input.ci.failures) == 0
	violation := {
		"message": sprintf("CI reports %s for origin/develop", [input.ci.state]),
		"remediation": "Fix the build on develop, then refresh",
	}
}
`,
	}
}

// productionConfigPolicy warns about config vars set on staging only.
func productionConfigPolicy() Policy {
	return Policy{
		Name:        "production-config",
		Description: "Warns about config vars present on staging but missing in production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Source:      SourceBuiltin,
		Rego: `package hu.policies.config

import rego.v1

deny contains violation if {
	input.action in data.hu.gated_actions
	some key in input.missing_config
	violation := {
		"message": sprintf("Missing config in PROD: %s", [key]),
		"remediation": "Set the variable on production or list it in .hu/env_ignore",
	}
}
`,
	}
}

// releaseTagPolicy blocks finishing a release whose tag was already
// shipped.
func releaseTagPolicy() Policy {
	return Policy{
		Name:        "release-tag",
		Description: "Blocks finishing a release whose tag already exists on master or production",
		Severity:    SeverityError,
		Enabled:     true,
		Source:      SourceBuiltin,
		Rego: `package hu.policies.tag

import rego.v1

deny contains violation if {
	input.action == "finish_release"
	input.release_tag in input.released_tags
	violation := {
		"message": sprintf("Release tag %s already exists", [input.release_tag]),
		"remediation": "Bump the release with one of the patch, minor or major actions",
	}
}
`,
	}
}
