package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/legisync/pkg/article"
)

// ErrNotTracked is returned when an article is not in the tracked set.
var ErrNotTracked = errors.New("article is not tracked")

// Definition is a tracked article: which article to sync and how the frontend
// labels and orders it.
type Definition struct {
	Code     article.Code `yaml:"code" json:"code"`
	Number   string       `yaml:"number" json:"number"`
	Label    string       `yaml:"label,omitempty" json:"label,omitempty"`
	Priority int          `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Canonical returns the normalized article number used as registry key.
func (definition Definition) Canonical() string {
	return article.Normalize(definition.Number)
}

// Identifier returns the article identifier to resolve.
func (definition Definition) Identifier() article.Identifier {
	return article.Identifier{Code: definition.Code, Number: definition.Number}
}

// DisplayLabel returns the configured label or one derived from code and number.
func (definition Definition) DisplayLabel() string {
	if definition.Label != "" {
		return definition.Label
	}
	return DefaultLabel(definition.Code, definition.Number)
}

// DefinitionsFile is the YAML layout of a tracked-articles file.
type DefinitionsFile struct {
	Articles []Definition `yaml:"articles"`
}

// LoadDefinitions reads a tracked-articles YAML file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracked articles: %w", err)
	}

	var file DefinitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tracked articles: %w", err)
	}

	InferCodes(file.Articles)
	if err := ValidateDefinitions(file.Articles); err != nil {
		return nil, err
	}
	return file.Articles, nil
}

// InferCodes fills the code of definitions that have none from the numbering
// ranges known to article.GuessCode. Definitions it cannot place are left for
// ValidateDefinitions to reject.
func InferCodes(definitions []Definition) {
	for i := range definitions {
		if definitions[i].Code != "" {
			continue
		}
		if guessed, found := article.GuessCode(definitions[i].Number); found {
			definitions[i].Code = guessed
		}
	}
}

// ValidateDefinitions checks every definition and rejects duplicates.
func ValidateDefinitions(definitions []Definition) error {
	if len(definitions) == 0 {
		return errors.New("no tracked articles defined")
	}

	seen := make(map[string]int, len(definitions))
	for i, definition := range definitions {
		if definition.Number == "" {
			return fmt.Errorf("article %d: number is required", i)
		}
		canonical := definition.Canonical()
		if canonical == "" {
			return fmt.Errorf("article %d: number %q is not an article number", i, definition.Number)
		}
		if definition.Code == "" {
			return fmt.Errorf("article %s: code is required", canonical)
		}
		if !definition.Code.Valid() {
			return fmt.Errorf("article %s: unknown code %q", canonical, definition.Code)
		}
		if definition.Priority < 0 {
			return fmt.Errorf("article %s: priority must not be negative", canonical)
		}
		if previous, duplicate := seen[canonical]; duplicate {
			return fmt.Errorf("article %s: duplicate of article %d", canonical, previous)
		}
		seen[canonical] = i
	}
	return nil
}

// FindDefinition returns the definition of a number in any spelling.
func FindDefinition(definitions []Definition, number string) (Definition, error) {
	canonical := article.Normalize(number)
	for _, definition := range definitions {
		if definition.Canonical() == canonical {
			return definition, nil
		}
	}
	return Definition{}, fmt.Errorf("%s: %w", canonical, ErrNotTracked)
}

// DefaultDefinitions returns the articles tracked by the frontend out of the box.
func DefaultDefinitions() []Definition {
	consumer := func(number string, priority int) Definition {
		return Definition{Code: article.CodeConsommation, Number: number, Priority: priority}
	}
	civil := func(number string, priority int) Definition {
		return Definition{Code: article.CodeCivil, Number: number, Priority: priority}
	}
	procedure := func(number string, priority int) Definition {
		return Definition{Code: article.CodeProcedureCivile, Number: number, Priority: priority}
	}

	definitions := []Definition{
		// Legal guarantee of conformity
		consumer("L.217-3", 10),
		consumer("L.217-4", 9),
		consumer("L.217-5", 8),
		consumer("L.217-6", 7),
		consumer("L.217-7", 10),
		consumer("L.217-8", 6),
		consumer("L.217-9", 10),
		consumer("L.217-10", 8),
		consumer("L.217-11", 9),
		consumer("L.217-12", 8),
		consumer("L.217-13", 7),
		consumer("L.217-14", 6),
		consumer("L.217-15", 5),
		consumer("L.217-16", 5),
		consumer("L.217-17", 4),
		consumer("L.217-18", 4),
		consumer("L.217-19", 3),
		consumer("L.217-20", 3),
		consumer("L.217-21", 2),
		consumer("L.217-22", 2),
		consumer("L.217-23", 1),
		consumer("L.217-24", 1),
		consumer("L.217-25", 1),
		consumer("L.217-26", 1),
		consumer("L.217-27", 1),
		consumer("L.217-28", 1),

		// Consumer mediation
		consumer("L.612-1", 9),
		consumer("L.612-2", 8),
		consumer("L.612-3", 7),
		consumer("L.612-4", 6),
		consumer("L.612-5", 5),
		consumer("L.811-1", 6),

		// Hidden defects
		civil("1641", 8),
		civil("1642", 7),
		civil("1642-1", 5),
		civil("1643", 6),
		civil("1644", 7),
		civil("1645", 5),
		civil("1646", 5),
		civil("1646-1", 4),
		civil("1647", 4),
		civil("1648", 4),
		civil("1649", 3),

		procedure("808", 6),
		procedure("843", 5),
		procedure("844", 4),
		procedure("845", 4),
		procedure("846", 3),
		procedure("847", 3),
	}

	for i := range definitions {
		definitions[i].Label = DefaultLabel(definitions[i].Code, definitions[i].Number)
	}
	return definitions
}
