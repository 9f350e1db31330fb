// Package llm translates free-form chat text into structured engine
// instructions via an OpenAI-compatible chat completions endpoint. The engine
// core never sees free text; everything crossing the boundary is a typed
// Instruction validated here.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/resilience"
)

// Actions the model may select.
const (
	ActionSearch  = "search"
	ActionCompare = "compare"
	ActionDetails = "details"
)

// ErrBadInstruction marks a model response that does not decode into a usable
// instruction.
var ErrBadInstruction = errors.New("unusable model instruction")

// FilterPatch is the model-facing filter shape. Pointer fields distinguish
// "not mentioned" from a value; constraint removal goes through
// Instruction.Clear instead of JSON null, which structured-output backends
// handle unreliably.
type FilterPatch struct {
	Brand          *string  `json:"brand,omitempty"`
	Model          *string  `json:"model,omitempty"`
	Configuration  *string  `json:"configuration,omitempty"`
	Euro           *int     `json:"euro,omitempty"`
	Gearbox        *string  `json:"gearbox,omitempty" jsonschema:"enum=automatic,enum=manual,enum=semi-automatic"`
	Fuel           *string  `json:"fuel,omitempty"`
	Cabin          *string  `json:"cabin,omitempty"`
	MinPrice       *float64 `json:"min_price,omitempty"`
	MaxPrice       *float64 `json:"max_price,omitempty"`
	MinPower       *int     `json:"min_power,omitempty"`
	MaxPower       *int     `json:"max_power,omitempty"`
	MinMileage     *int     `json:"min_mileage,omitempty"`
	MaxMileage     *int     `json:"max_mileage,omitempty"`
	MinBeds        *int     `json:"min_beds,omitempty"`
	IsNew          *bool    `json:"is_new,omitempty"`
	HasRetarder    *bool    `json:"has_retarder,omitempty"`
	HasAirco       *bool    `json:"has_airco,omitempty"`
	IncludeDamaged *bool    `json:"include_damaged,omitempty"`
	SortBy         *string  `json:"sort_by,omitempty" jsonschema:"enum=price_asc,enum=price_desc,enum=mileage_asc,enum=power_desc"`
	Limit          *int     `json:"limit,omitempty"`
}

// Instruction is one decoded engine command.
type Instruction struct {
	Action     string       `json:"action" jsonschema:"enum=search,enum=compare,enum=details"`
	Mode       string       `json:"mode,omitempty" jsonschema:"enum=replace,enum=refine"`
	Filters    *FilterPatch `json:"filters,omitempty"`
	Clear      []string     `json:"clear,omitempty"`
	Ordinals   []int        `json:"ordinals,omitempty"`
	VehicleIDs []int        `json:"vehicle_ids,omitempty"`
	VehicleID  *int         `json:"vehicle_id,omitempty"`
}

// Delta converts the patch plus clear list into a filter delta.
func (in Instruction) Delta() (domain.Filter, error) {
	var f domain.Filter
	if p := in.Filters; p != nil {
		if p.Brand != nil {
			f.Brand = domain.Set(*p.Brand)
		}
		if p.Model != nil {
			f.Model = domain.Set(*p.Model)
		}
		if p.Configuration != nil {
			f.Configuration = domain.Set(*p.Configuration)
		}
		if p.Euro != nil {
			f.Euro = domain.Set(*p.Euro)
		}
		if p.Gearbox != nil {
			f.Gearbox = domain.Set(*p.Gearbox)
		}
		if p.Fuel != nil {
			f.Fuel = domain.Set(*p.Fuel)
		}
		if p.Cabin != nil {
			f.Cabin = domain.Set(*p.Cabin)
		}
		if p.MinPrice != nil {
			f.MinPrice = domain.Set(*p.MinPrice)
		}
		if p.MaxPrice != nil {
			f.MaxPrice = domain.Set(*p.MaxPrice)
		}
		if p.MinPower != nil {
			f.MinPower = domain.Set(*p.MinPower)
		}
		if p.MaxPower != nil {
			f.MaxPower = domain.Set(*p.MaxPower)
		}
		if p.MinMileage != nil {
			f.MinMileage = domain.Set(*p.MinMileage)
		}
		if p.MaxMileage != nil {
			f.MaxMileage = domain.Set(*p.MaxMileage)
		}
		if p.MinBeds != nil {
			f.MinBeds = domain.Set(*p.MinBeds)
		}
		if p.IsNew != nil {
			f.IsNew = domain.Set(*p.IsNew)
		}
		if p.HasRetarder != nil {
			f.HasRetarder = domain.Set(*p.HasRetarder)
		}
		if p.HasAirco != nil {
			f.HasAirco = domain.Set(*p.HasAirco)
		}
		if p.IncludeDamaged != nil {
			f.IncludeDamaged = domain.Set(*p.IncludeDamaged)
		}
		if p.SortBy != nil {
			f.Sort = domain.Set(domain.SortOrder(*p.SortBy))
		}
		if p.Limit != nil {
			f.Limit = domain.Set(*p.Limit)
		}
	}
	for _, name := range in.Clear {
		if err := clearField(&f, name); err != nil {
			return domain.Filter{}, err
		}
	}
	if err := f.Validate(); err != nil {
		return domain.Filter{}, err
	}
	return f, nil
}

func clearField(f *domain.Filter, name string) error {
	switch name {
	case "brand":
		f.Brand = domain.Clear[string]()
	case "model":
		f.Model = domain.Clear[string]()
	case "configuration":
		f.Configuration = domain.Clear[string]()
	case "euro":
		f.Euro = domain.Clear[int]()
	case "gearbox":
		f.Gearbox = domain.Clear[string]()
	case "fuel":
		f.Fuel = domain.Clear[string]()
	case "cabin":
		f.Cabin = domain.Clear[string]()
	case "min_price":
		f.MinPrice = domain.Clear[float64]()
	case "max_price":
		f.MaxPrice = domain.Clear[float64]()
	case "min_power":
		f.MinPower = domain.Clear[int]()
	case "max_power":
		f.MaxPower = domain.Clear[int]()
	case "min_mileage":
		f.MinMileage = domain.Clear[int]()
	case "max_mileage":
		f.MaxMileage = domain.Clear[int]()
	case "min_beds":
		f.MinBeds = domain.Clear[int]()
	case "is_new":
		f.IsNew = domain.Clear[bool]()
	case "has_retarder":
		f.HasRetarder = domain.Clear[bool]()
	case "has_airco":
		f.HasAirco = domain.Clear[bool]()
	case "include_damaged":
		f.IncludeDamaged = domain.Clear[bool]()
	case "sort_by":
		f.Sort = domain.Clear[domain.SortOrder]()
	case "limit":
		f.Limit = domain.Clear[int]()
	default:
		return fmt.Errorf("%w: unknown clear field %q", ErrBadInstruction, name)
	}
	return nil
}

// Config holds the chat completion endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client extracts instructions from chat turns. Calls run through a circuit
// breaker so a flapping model endpoint fails fast instead of queueing.
type Client struct {
	oai     openai.Client
	model   string
	timeout time.Duration
	breaker *resilience.Breaker
	system  string
}

// New builds a Client. brands is the live inventory vocabulary and is baked
// into the system prompt so the model maps "a DAF" onto a token the engine
// actually carries.
func New(cfg Config, brands []string) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		oai:     openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		system:  systemPrompt(brands),
	}
}

func systemPrompt(brands []string) string {
	return fmt.Sprintf(`You translate customer messages about used tractor units into one JSON instruction.

Actions:
- "search": build or adjust inventory filters. mode "replace" starts over, "refine" keeps earlier constraints. List constraint names in "clear" when the customer removes one.
- "compare": side by side view. Use "ordinals" for references like "the first two" (1-based positions in the last shown results), or "vehicle_ids" for explicit ids.
- "details": one vehicle. Use "vehicle_id", or a single entry in "ordinals".

Known brands: %s.
Gearbox values: automatic, manual, semi-automatic. Prices are euros, mileage km, power hp.
Only state constraints the customer actually gave. Never invent vehicle ids.`,
		strings.Join(brands, ", "))
}

// instructionSchema is generated once; the reflector inlines definitions so
// strict structured-output backends accept it.
var instructionSchema = func() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(Instruction{})
}()

func responseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        "engine_instruction",
				Description: openai.String("structured inventory engine instruction"),
				Schema:      instructionSchema,
				Strict:      openai.Bool(true),
			},
		},
	}
}

// Extract translates one user message into an Instruction. history carries
// prior turns verbatim, oldest first, for pronoun resolution.
func (c *Client) Extract(ctx context.Context, history []string, text string) (Instruction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(c.system))
	for _, h := range history {
		messages = append(messages, openai.UserMessage(h))
	}
	messages = append(messages, openai.UserMessage(text))

	completion, err := resilience.Do(c.breaker, ctx,
		func(ctx context.Context) (*openai.ChatCompletion, error) {
			return c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Messages:       messages,
				Model:          c.model,
				ResponseFormat: responseFormat(),
				Temperature:    openai.Float(0),
			})
		})
	if err != nil {
		return Instruction{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Instruction{}, fmt.Errorf("%w: empty completion", ErrBadInstruction)
	}

	var in Instruction
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &in); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrBadInstruction, err)
	}
	if err := validate(in); err != nil {
		return Instruction{}, err
	}
	return in, nil
}

func validate(in Instruction) error {
	switch in.Action {
	case ActionSearch:
		if in.Mode != "replace" && in.Mode != "refine" {
			return fmt.Errorf("%w: search mode %q", ErrBadInstruction, in.Mode)
		}
	case ActionCompare:
		if len(in.Ordinals) == 0 && len(in.VehicleIDs) == 0 {
			return fmt.Errorf("%w: compare without ordinals or ids", ErrBadInstruction)
		}
	case ActionDetails:
		if in.VehicleID == nil && len(in.Ordinals) != 1 {
			return fmt.Errorf("%w: details without a vehicle reference", ErrBadInstruction)
		}
	default:
		return fmt.Errorf("%w: action %q", ErrBadInstruction, in.Action)
	}
	return nil
}
