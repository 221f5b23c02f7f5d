// Package runtime ties the bridge together into a script system.
//
// A System owns a root domain and a script domain created by one engine,
// the class module over the script domain, the dispatcher, the entity
// bridge and the method bindings managed code calls back into.
//
//	sys, err := runtime.New(runtime.Options{Engine: engine.NewGoEngine()})
//	if err != nil {
//		return err
//	}
//	defer sys.Close(ctx)
//
//	if err := sys.Init(ctx, sources...); err != nil {
//		return err
//	}
//	script, err := sys.InstantiateScript(ctx, "Game.Rules", runtime.ScriptGameRules, value.Args{})
//
// Reload builds a new script domain and moves bridged entities and script
// instances into it. Instances from the old domain report Alive() == false
// afterwards. Failures are handed to the ReloadHandler, which may retry,
// revert to the previous sources, accept the failure or abort.
package runtime
