package transitions

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSeparator joins parent and child segments in canonical state paths.
const DefaultSeparator = "."

// MachineConfig is the declarative machine definition. YAML and JSON both
// unmarshal into it. Hook and condition entries are registry names resolved
// once when the machine is built; nothing is looked up at trigger time.
type MachineConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Initial   string `json:"initial" yaml:"initial"`
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`

	States      []StateConfig      `json:"states" yaml:"states"`
	Transitions []TransitionConfig `json:"transitions" yaml:"transitions"`

	// Machine-level event callbacks, by registry name.
	PrepareEvent      []string `json:"prepare_event,omitempty" yaml:"prepare_event,omitempty"`
	BeforeStateChange []string `json:"before_state_change,omitempty" yaml:"before_state_change,omitempty"`
	AfterStateChange  []string `json:"after_state_change,omitempty" yaml:"after_state_change,omitempty"`
	FinalizeEvent     []string `json:"finalize_event,omitempty" yaml:"finalize_event,omitempty"`
}

// StateConfig declares one state and its subtree.
type StateConfig struct {
	Name     string        `json:"name" yaml:"name"`
	Children []StateConfig `json:"children,omitempty" yaml:"children,omitempty"`
	OnEnter  []string      `json:"on_enter,omitempty" yaml:"on_enter,omitempty"`
	OnExit   []string      `json:"on_exit,omitempty" yaml:"on_exit,omitempty"`
}

// TransitionConfig declares one transition candidate.
type TransitionConfig struct {
	Trigger    string   `json:"trigger" yaml:"trigger"`
	Source     string   `json:"source" yaml:"source"`
	Dest       string   `json:"dest,omitempty" yaml:"dest,omitempty"`
	Reenter    bool     `json:"reenter,omitempty" yaml:"reenter,omitempty"`
	Conditions []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Unless     []string `json:"unless,omitempty" yaml:"unless,omitempty"`
	Prepare    []string `json:"prepare,omitempty" yaml:"prepare,omitempty"`
	Before     []string `json:"before,omitempty" yaml:"before,omitempty"`
	After      []string `json:"after,omitempty" yaml:"after,omitempty"`
}

func (c MachineConfig) separator() string {
	if sep := strings.TrimSpace(c.Separator); sep != "" {
		return sep
	}
	return DefaultSeparator
}

// Validate ensures the machine definition is well formed.
func (c MachineConfig) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "machine"
	}
	sep := c.separator()
	if sep == WildcardSource {
		return fmt.Errorf("%s separator must not be %q", name, WildcardSource)
	}
	if len(c.States) == 0 {
		return fmt.Errorf("%s requires at least one state", name)
	}

	stateSet := make(map[string]struct{})
	var collect func(prefix string, states []StateConfig) error
	collect = func(prefix string, states []StateConfig) error {
		for _, st := range states {
			stName := strings.TrimSpace(st.Name)
			if stName == "" {
				return fmt.Errorf("%s has an empty state name under %q", name, prefix)
			}
			if stName == WildcardSource {
				return fmt.Errorf("%s state name %q is reserved", name, WildcardSource)
			}
			if strings.Contains(stName, sep) {
				return fmt.Errorf("%s state %q contains the separator %q", name, stName, sep)
			}
			path := stName
			if prefix != "" {
				path = prefix + sep + stName
			}
			if _, exists := stateSet[path]; exists {
				return fmt.Errorf("%s duplicate state path %s", name, path)
			}
			stateSet[path] = struct{}{}
			if err := collect(path, st.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect("", c.States); err != nil {
		return err
	}

	initial := strings.TrimSpace(c.Initial)
	if initial == "" {
		return fmt.Errorf("%s requires an initial state", name)
	}
	if _, ok := stateSet[initial]; !ok {
		return fmt.Errorf("%s initial state %s is not declared", name, initial)
	}

	transitionSet := make(map[string]struct{}, len(c.Transitions))
	for idx, tr := range c.Transitions {
		trigger := strings.TrimSpace(tr.Trigger)
		if trigger == "" {
			return fmt.Errorf("%s transition[%d] missing trigger", name, idx)
		}
		source := strings.TrimSpace(tr.Source)
		if source == "" {
			return fmt.Errorf("%s transition %s missing source", name, trigger)
		}
		if source != WildcardSource {
			if _, ok := stateSet[source]; !ok {
				return fmt.Errorf("%s transition %s references unknown source state %s", name, trigger, source)
			}
		}
		dest := strings.TrimSpace(tr.Dest)
		if dest != "" {
			if dest == WildcardSource {
				return fmt.Errorf("%s transition %s must name a concrete dest", name, trigger)
			}
			if _, ok := stateSet[dest]; !ok {
				return fmt.Errorf("%s transition %s references unknown dest state %s", name, trigger, dest)
			}
		}
		if tr.Reenter {
			if dest == "" {
				return fmt.Errorf("%s transition %s sets reenter on a hook-only transition", name, trigger)
			}
			if source != WildcardSource && dest != source {
				return fmt.Errorf("%s transition %s sets reenter but dest %s differs from source %s", name, trigger, dest, source)
			}
		}
		key := trigger + "::" + source + "::" + dest
		if _, exists := transitionSet[key]; exists {
			return fmt.Errorf("%s duplicate transition trigger=%s source=%s dest=%s", name, trigger, source, dest)
		}
		transitionSet[key] = struct{}{}
	}
	return nil
}

// ParseMachineConfig parses a JSON or YAML machine definition and validates it.
func ParseMachineConfig(data []byte) (MachineConfig, error) {
	var cfg MachineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// yaml.Unmarshal also accepts JSON input
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// MarshalMachineConfig renders the definition as JSON (useful for fixtures).
func MarshalMachineConfig(cfg MachineConfig) ([]byte, error) {
	return json.Marshal(cfg)
}
