package goals

import "errors"

var ErrUnknownGoal = errors.New("goals: unknown goal")

type Goal struct {
	ID       string `json:"id"`
	Icon     string `json:"icon"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// masterCatalog is never mutated. Ids are never reused.
var masterCatalog = []Goal{
	{ID: "1", Icon: "💧", Title: "Drink 500ml warm water", Subtitle: "Kickstarts digestion and morning pooping"},
	{ID: "2", Icon: "🌞", Title: "Get 5 minutes sunlight", Subtitle: "Resets your gut’s internal clock"},
	{ID: "3", Icon: "🤲", Title: "Massage belly in circles", Subtitle: "Stimulates colon and relieves gas"},
	{ID: "4", Icon: "🦷", Title: "Chew breakfast 30 times", Subtitle: "Activates enzymes and smooth digestion"},
	{ID: "5", Icon: "🍳", Title: "Eat breakfast within 2 hours", Subtitle: "Aligns with your gut’s rhythm"},
	{ID: "6", Icon: "🚶", Title: "Walk 10 minutes post-lunch", Subtitle: "Boosts motility and blood flow"},
	{ID: "7", Icon: "🪑", Title: "Sit upright during meals", Subtitle: "Improves digestion and prevents bloating"},
	{ID: "8", Icon: "🪜", Title: "Use footstool when pooping", Subtitle: "Eases elimination with proper angle"},
	{ID: "9", Icon: "🤸", Title: "Do wind-relieving pose", Subtitle: "Releases trapped gas and tension"},
	{ID: "10", Icon: "🌬️", Title: "Do 4-7-8 breathing", Subtitle: "Shifts body into digestion mode"},
	{ID: "11", Icon: "🎶", Title: "Hum for 30 seconds", Subtitle: "Stimulates vagus nerve for motility"},
	{ID: "12", Icon: "❄️", Title: "Splash face with cold water", Subtitle: "Activates gut-calming nerve signals"},
	{ID: "13", Icon: "🥤", Title: "Drink water before meals", Subtitle: "Primes digestion without dilution"},
	{ID: "14", Icon: "🕒", Title: "Stop eating 3 hours before bed", Subtitle: "Gives gut time to fully rest"},
	{ID: "15", Icon: "⏳", Title: "Eat within 12-hour window", Subtitle: "Supports microbiome and repair cycles"},
	{ID: "16", Icon: "🚰", Title: "Sip room-temp water at meals", Subtitle: "Hydrates gently, avoids slowing digestion"},
	{ID: "17", Icon: "🥬", Title: "Eat 1 tbsp sauerkraut", Subtitle: "Feeds good bacteria and reduces inflammation"},
	{ID: "18", Icon: "🌰", Title: "Eat 6 soaked almonds", Subtitle: "Gives prebiotics, fats, and protein"},
	{ID: "19", Icon: "🌾", Title: "Add flaxseed to breakfast", Subtitle: "Adds fiber and soothes your gut"},
	{ID: "20", Icon: "👅", Title: "Scrape tongue after brushing", Subtitle: "Improves enzyme response and oral-gut link"},
}

// Catalog returns a copy of the master catalog in its fixed order.
func Catalog() []Goal {
	out := make([]Goal, len(masterCatalog))
	copy(out, masterCatalog)
	return out
}

// Lookup finds a catalog goal by id.
func Lookup(id string) (Goal, error) {
	for _, g := range masterCatalog {
		if g.ID == id {
			return g, nil
		}
	}
	return Goal{}, ErrUnknownGoal
}

func ids(goals []Goal) []string {
	out := make([]string, len(goals))
	for i, g := range goals {
		out[i] = g.ID
	}
	return out
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
