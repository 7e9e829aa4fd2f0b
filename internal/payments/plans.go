package payments

import (
	_ "embed"
	"fmt"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"gopkg.in/yaml.v3"
)

const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

//go:embed plans.yaml
var plansYAML []byte

var (
	loadPlansOnce sync.Once
	defaultPlans  *Catalog
	defaultErr    error
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders whole rupees with Indian digit grouping, e.g. ₹1,999.
func FormatINR(rupees int64) string {
	return inrPrinter.Sprintf("₹%v", number.Decimal(rupees))
}

type TrialAllowance struct {
	Matches       int    `yaml:"matches" json:"matches"`
	Introductions int    `yaml:"introductions" json:"introductions"`
	VideoCalls    string `yaml:"video_calls" json:"videoCalls"`
}

type Plan struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Monthly     int64           `yaml:"monthly" json:"monthlyAmount"`
	Yearly      int64           `yaml:"yearly" json:"yearlyAmount"`
	Popular     bool            `yaml:"popular" json:"popular"`
	Elite       bool            `yaml:"elite" json:"isElite,omitempty"`
	Trial       *TrialAllowance `yaml:"trial" json:"trialFeatures,omitempty"`
	Features    []string        `yaml:"features" json:"features"`
	Limitations []string        `yaml:"limitations" json:"limitations,omitempty"`

	Price       string `yaml:"-" json:"price"`
	YearlyPrice string `yaml:"-" json:"yearlyPrice"`
	Period      string `yaml:"-" json:"period"`
}

// Amount is the price in rupees for a billing interval.
func (p Plan) Amount(interval string) (int64, bool) {
	switch interval {
	case IntervalMonthly:
		return p.Monthly, true
	case IntervalYearly:
		return p.Yearly, true
	}
	return 0, false
}

type AddOn struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Amount      int64  `yaml:"price" json:"amount"`
	Description string `yaml:"description" json:"description"`
	Price       string `yaml:"-" json:"price"`
}

type Catalog struct {
	Currency string  `yaml:"currency" json:"currency"`
	Plans    []Plan  `yaml:"plans" json:"plans"`
	AddOns   []AddOn `yaml:"add_ons" json:"addOns"`
}

func ParsePlans(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	if len(c.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	seen := map[string]bool{}
	for i := range c.Plans {
		p := &c.Plans[i]
		if p.ID == "" || seen[p.ID] {
			return nil, fmt.Errorf("plan %d has a missing or duplicate id %q", i, p.ID)
		}
		if p.Monthly <= 0 || p.Yearly <= 0 {
			return nil, fmt.Errorf("plan %q needs monthly and yearly prices", p.ID)
		}
		seen[p.ID] = true
		p.Price = FormatINR(p.Monthly)
		p.YearlyPrice = FormatINR(p.Yearly)
		p.Period = "/month"
	}
	for i := range c.AddOns {
		c.AddOns[i].Price = FormatINR(c.AddOns[i].Amount)
	}
	return &c, nil
}

// DefaultPlans returns the embedded plan catalog.
func DefaultPlans() (*Catalog, error) {
	loadPlansOnce.Do(func() {
		defaultPlans, defaultErr = ParsePlans(plansYAML)
	})
	return defaultPlans, defaultErr
}

func MustDefaultPlans() *Catalog {
	c, err := DefaultPlans()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Plan(id string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
