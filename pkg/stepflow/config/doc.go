/*
Package config builds workflows from declarative YAML or JSON
definitions.

A definition names the workflow and its node tree; executors are code,
so the caller supplies them by name. Predicates (condition guards,
router selectors, and loop end conditions) are written as expr
expressions evaluated against the run's chaining state.

Example definition:

	name: support
	description: classify and respond to support requests
	steps:
	  - name: classify
	    executor: classifier
	  - name: escalate
	    type: condition
	    condition: 'previous_content == "urgent"'
	    steps:
	      - name: page
	        executor: pager
	  - name: respond
	    executor: responder

Example use:

	def, err := config.LoadFile("support.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	wf, err := config.Build(def, map[string]stepflow.Executor{
	    "classifier": classifier,
	    "pager":      pager,
	    "responder":  responder,
	})

Expressions see these variables:

	message          the workflow message as a string
	previous_content the preceding step's content as a string
	outputs          map of step name to that step's content
	session_state    the session state map
	additional_data  the run's additional data map

Loop end conditions see the just-finished iteration instead: outputs
(the iteration's contents in order), named (step name to content), and
last_content.
*/
package config
