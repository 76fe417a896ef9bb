package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// -- Decision Protocol Schemas --

// ActionName is the closed vocabulary of actions the decision-maker may request.
// The string values are the wire names used in the decision JSON.
type ActionName string

const (
	ActionNavigate       ActionName = "navigate"        // Loads a URL in the active tab.
	ActionClickElement   ActionName = "click_element"   // Clicks an indexed element.
	ActionInputText      ActionName = "input_text"      // Types text into an indexed element.
	ActionGoBack         ActionName = "go_back"         // History back.
	ActionGoForward      ActionName = "go_forward"      // History forward.
	ActionScroll         ActionName = "scroll"          // Scrolls the page up or down.
	ActionSwitchTab      ActionName = "switch_tab"      // Activates another tab.
	ActionOpenTab        ActionName = "open_tab"        // Opens a new tab.
	ActionCloseTab       ActionName = "close_tab"       // Closes the active tab.
	ActionExtractContent ActionName = "extract_content" // Reads page text.
	ActionCopyText       ActionName = "copy_text"       // Stores text in the clipboard.
	ActionPasteText      ActionName = "paste_text"      // Types the clipboard into an indexed element.
	ActionDone           ActionName = "done"            // Terminates the task.
)

// ActionNames lists the vocabulary in documentation order.
var ActionNames = []ActionName{
	ActionNavigate,
	ActionClickElement,
	ActionInputText,
	ActionGoBack,
	ActionGoForward,
	ActionScroll,
	ActionSwitchTab,
	ActionOpenTab,
	ActionCloseTab,
	ActionExtractContent,
	ActionCopyText,
	ActionPasteText,
	ActionDone,
}

// Known reports whether n belongs to the vocabulary.
func (n ActionName) Known() bool {
	for _, name := range ActionNames {
		if name == n {
			return true
		}
	}
	return false
}

// CurrentState is the decision-maker's evaluation record.
type CurrentState struct {
	EvaluationPreviousGoal string `json:"evaluation_previous_goal"`
	Memory                 string `json:"memory"`
	NextGoal               string `json:"next_goal"`
}

// Action is one requested operation. On the wire it is a single-key object
// mapping the action name to its parameter object.
type Action struct {
	Name   ActionName
	Params map[string]any
}

// MarshalJSON renders the action in its wire shape: {"<name>": {<params>}}.
func (a Action) MarshalJSON() ([]byte, error) {
	params := a.Params
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(map[string]map[string]any{string(a.Name): params})
}

// UnmarshalJSON accepts only the single-key wire shape.
func (a *Action) UnmarshalJSON(data []byte) error {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire) != 1 {
		return fmt.Errorf("action must have exactly one key, got %d", len(wire))
	}
	for name, raw := range wire {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var params map[string]any
		if err := dec.Decode(&params); err != nil {
			return fmt.Errorf("parameters of %q must be an object: %w", name, err)
		}
		if params == nil {
			return fmt.Errorf("parameters of %q must be an object", name)
		}
		a.Name = ActionName(name)
		a.Params = params
	}
	return nil
}

// Decision is one structured response from the decision-maker.
type Decision struct {
	CurrentState CurrentState `json:"current_state"`
	Actions      []Action     `json:"action"`
}
