package llm

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Catalog is the prompt and curriculum data shipped with the binary.
type Catalog struct {
	FeedbackSystem     string                       `yaml:"feedback_system"`
	ProbeSystem        string                       `yaml:"probe_system"`
	ProbePrompt        string                       `yaml:"probe_prompt"`
	ProbeExpect        string                       `yaml:"probe_expect"`
	SchoolTypes        []string                     `yaml:"school_types"`
	Grades             []string                     `yaml:"grades"`
	Difficulties       []string                     `yaml:"difficulties"`
	Topics             []string                     `yaml:"topics"`
	LevelCriteria      map[string]map[string]string `yaml:"level_criteria"`
	FeedbackTemplate   string                       `yaml:"feedback_template"`
	GenerationTemplate string                       `yaml:"generation_template"`
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// LoadCatalog parses the embedded catalogue once.
func LoadCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		var c Catalog
		if err := yaml.Unmarshal(promptsYAML, &c); err != nil {
			catalogErr = fmt.Errorf("failed to parse prompt catalog: %w", err)
			return
		}
		catalog = &c
	})
	return catalog, catalogErr
}

// Criteria returns the level description for a school type and difficulty,
// or an empty string when the pair is unknown.
func (c *Catalog) Criteria(schoolType, difficulty string) string {
	return c.LevelCriteria[schoolType][difficulty]
}

func (c *Catalog) FeedbackPrompt(p *models.Problem, studentAnswer string) string {
	return strings.NewReplacer(
		"{question}", p.Question,
		"{context}", p.Context,
		"{answer}", p.Answer,
		"{student_answer}", studentAnswer,
	).Replace(c.FeedbackTemplate)
}

// GenerationRequest describes a batch of problems to generate. Provider, if
// set, is tried before the configured order.
type GenerationRequest struct {
	SchoolType string
	Grade      string
	Topic      string
	Difficulty string
	Count      int
	Provider   ProviderName
}

func (c *Catalog) GenerationPrompt(req GenerationRequest) string {
	return strings.NewReplacer(
		"{school_type}", req.SchoolType,
		"{grade}", req.Grade,
		"{topic}", req.Topic,
		"{difficulty}", req.Difficulty,
		"{count}", strconv.Itoa(req.Count),
		"{level_criteria}", c.Criteria(req.SchoolType, req.Difficulty),
	).Replace(c.GenerationTemplate)
}
