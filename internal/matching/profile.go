package matching

// Profile is the structured compatibility profile a user fills in. Scales
// (values, personality traits) run 1-10.
type Profile struct {
	ID                string            `json:"id" bson:"-"`
	Age               int               `json:"age" bson:"age"`
	Location          Location          `json:"location" bson:"location"`
	Education         string            `json:"education" bson:"education"`
	Profession        string            `json:"profession" bson:"profession"`
	Income            int               `json:"income,omitempty" bson:"income,omitempty"`
	Religion          string            `json:"religion" bson:"religion"`
	Caste             string            `json:"caste,omitempty" bson:"caste,omitempty"`
	Interests         []string          `json:"interests" bson:"interests"`
	Values            Values            `json:"values" bson:"values"`
	Lifestyle         Lifestyle         `json:"lifestyle" bson:"lifestyle"`
	PersonalityTraits PersonalityTraits `json:"personalityTraits" bson:"personalityTraits"`
	RelationshipGoals RelationshipGoals `json:"relationshipGoals" bson:"relationshipGoals"`
	Preferences       Preferences       `json:"preferences" bson:"preferences"`
}

type Location struct {
	City  string `json:"city" bson:"city"`
	State string `json:"state" bson:"state"`
}

type Values struct {
	FamilyImportance  int `json:"familyImportance" bson:"familyImportance"`
	CareerAmbition    int `json:"careerAmbition" bson:"careerAmbition"`
	ReligiousValues   int `json:"religiousValues" bson:"religiousValues"`
	TraditionalValues int `json:"traditionalValues" bson:"traditionalValues"`
	SocialLife        int `json:"socialLife" bson:"socialLife"`
}

func (v Values) list() []int {
	return []int{v.FamilyImportance, v.CareerAmbition, v.ReligiousValues, v.TraditionalValues, v.SocialLife}
}

const (
	SmokingNever        = "never"
	SmokingOccasionally = "occasionally"
	SmokingRegularly    = "regularly"

	DrinkingNever     = "never"
	DrinkingSocially  = "socially"
	DrinkingRegularly = "regularly"

	DietVegetarian    = "vegetarian"
	DietNonVegetarian = "non-vegetarian"
	DietVegan         = "vegan"
	DietFlexible      = "flexible"
)

type Lifestyle struct {
	SmokingHabits     string `json:"smokingHabits" bson:"smokingHabits"`
	DrinkingHabits    string `json:"drinkingHabits" bson:"drinkingHabits"`
	ExerciseFrequency int    `json:"exerciseFrequency" bson:"exerciseFrequency"`
	DietPreference    string `json:"dietPreference" bson:"dietPreference"`
}

type PersonalityTraits struct {
	Extroversion       int `json:"extroversion" bson:"extroversion"`
	Openness           int `json:"openness" bson:"openness"`
	Agreeableness      int `json:"agreeableness" bson:"agreeableness"`
	Conscientiousness  int `json:"conscientiousness" bson:"conscientiousness"`
	EmotionalStability int `json:"emotionalStability" bson:"emotionalStability"`
}

const (
	TimelineWithinYear = "within-year"
	TimelineOneToTwo   = "1-2-years"
	TimelineTwoToThree = "2-3-years"
	TimelineFlexible   = "flexible"
)

type RelationshipGoals struct {
	TimelineToMarriage string `json:"timelineToMarriage" bson:"timelineToMarriage"`
	ChildrenDesired    bool   `json:"childrenDesired" bson:"childrenDesired"`
	NumberOfChildren   int    `json:"numberOfChildren,omitempty" bson:"numberOfChildren,omitempty"`
	LivingWithParents  bool   `json:"livingWithParents" bson:"livingWithParents"`
}

type AgeRange struct {
	Min int `json:"min" bson:"min"`
	Max int `json:"max" bson:"max"`
}

func (r AgeRange) contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

type Preferences struct {
	AgeRange             AgeRange `json:"ageRange" bson:"ageRange"`
	EducationPreference  []string `json:"educationPreference" bson:"educationPreference"`
	ProfessionPreference []string `json:"professionPreference" bson:"professionPreference"`
	LocationPreference   []string `json:"locationPreference" bson:"locationPreference"`
	IncomeExpectation    int      `json:"incomeExpectation,omitempty" bson:"incomeExpectation,omitempty"`
}
