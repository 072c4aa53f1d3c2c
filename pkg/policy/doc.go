// Package policy gates release actions with Open Policy Agent.
//
// Every enabled policy is a Rego module defining a deny set. Before a gated
// action runs, the session builds an Input from the current snapshot and
// calls Engine.EvaluateAction. Elements of the deny set are either strings
// or objects with message, severity and remediation keys. Error and
// critical violations block the action; anything else is printed as a
// warning.
//
// Built-in policies:
//
//   - ci-status: blocks finish_release and promote while CI reports failure
//   - production-config: warns about config vars missing in production
//   - release-tag: blocks finish_release when the tag was already shipped
//
// Repository policies live in .hu/policy as .rego or .json files and are
// reloaded by Engine.Watch while a session runs. A leading comment block
// becomes the description, and a "# severity: warning" line lowers the
// default severity. Modules must use "import rego.v1".
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	_ = eng.LoadDir(ctx, ".hu/policy")
//	result, err := eng.EvaluateAction(ctx, policy.NewInput(snap, phase, action, prev))
//	if err != nil {
//	    return err
//	}
//	if err := result.Err(action); err != nil {
//	    return err
//	}
package policy
