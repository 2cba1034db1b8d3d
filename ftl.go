// Package ftl is the execution core of an FTL template engine: the
// FreeMarker-style language of ${...} interpolations, <#...> directives and
// <@...> macro calls.
//
// # Quick Start
//
//	cfg := ftl.NewConfiguration()
//	cfg.AddTemplate("hello.ftl", "Hello ${name}!")
//	tmpl, _ := cfg.GetTemplate("hello.ftl")
//	out, _ := tmpl.Render(map[string]any{"name": "World"})
//	fmt.Println(out) // Output: Hello World!
//
// # Scopes
//
// A variable is looked up in this order: the loop variables of <#list> and
// of nested content, the local variables of the running macro or function,
// the current namespace, the globals set with <#global>, the data model and
// finally the shared variables of the Configuration.
//
//   - <#assign> writes the current namespace (or the one named after "in")
//   - <#local> writes the locals of the running macro or function
//   - <#global> writes the globals, visible from every namespace
//
// Every imported library runs once per render in a namespace of its own,
// which the importing template sees as a hash under the import alias.
//
// # Macros and Functions
//
//	<#macro card title body="(empty)" extra...>
//	  <h2>${title}</h2><#nested title?length>
//	</#macro>
//	<@card title="Hi"; len>${len} chars</@card>
//
//	<#function twice x><#return x * 2></#function>
//	${twice(21)}
//
// Parameter defaults may refer to each other in any order; they are
// evaluated until all of them resolve. A macro body always runs in the
// namespace it was defined in, while its nested content runs in the
// caller's scopes.
//
// # Error Handling
//
// Every failure is an *Error with a Kind:
//
//	if _, err := tmpl.Render(data); err != nil {
//	    var terr *ftl.Error
//	    if errors.As(err, &terr) && terr.Kind == ftl.ErrInvalidReference {
//	        fmt.Printf("missing value in %s: %s\n", terr.Name, terr.Expr)
//	    }
//	}
//
// Statement errors go through the configured ExceptionHandler; <#attempt>
// recovers the errors of its body. Cancelled contexts and exhausted fuel
// abort the render and are never recovered.
package ftl

// Version is the engine version reported by .version.
const Version = "1.0.0"
