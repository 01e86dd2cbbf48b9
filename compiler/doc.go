/*
Package compiler drives the fifth compiler middle-end.

	Definitions (yaml) ->
		ast.Parse ->
	Syntax Tree (ast) ->
		tp.Infer ->
	Stack Effects (tp) ->
		ir.Lower ->
	Flat Code (ir) ->
		opt.Pipeline ->
	Optimized Flat Code (ir) ->
		ssa.BuildAll, ssa.Validate ->
	Static Single Assignment (ssa) ->
		back.Backend ->
	Threaded Listing or Assembly Text
*/
package compiler
