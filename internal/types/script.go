package types

// Scene is one narrated segment backed by one image.
type Scene struct {
	SceneNumber       int      `json:"scene_number"`
	VisualDescription string   `json:"visual_description"` // always English; drives image generation
	Narration         string   `json:"narration"`
	Lines             []string `json:"lines,omitempty"` // read-along lines for poems and lullabies
}

// Script is a full video script in one language.
type Script struct {
	Title     string  `json:"title"`
	IntroHook string  `json:"intro_hook"`
	Scenes    []Scene `json:"scenes"`
	Outro     string  `json:"outro"`
	Language  string  `json:"language,omitempty"`
	Style     string  `json:"style,omitempty"`
}

// SceneTexts returns the spoken text per scene: the intro hook leads the first
// scene and the outro closes the last one.
func (s *Script) SceneTexts() []string {
	texts := make([]string, len(s.Scenes))
	last := len(s.Scenes) - 1
	for i, scene := range s.Scenes {
		text := scene.Narration
		if i == 0 && s.IntroHook != "" {
			text = s.IntroHook + " " + text
		}
		if i == last && i != 0 && s.Outro != "" {
			text = text + " " + s.Outro
		}
		texts[i] = text
	}
	return texts
}

// VisualDescriptions returns the image prompts in scene order.
func (s *Script) VisualDescriptions() []string {
	out := make([]string, len(s.Scenes))
	for i, scene := range s.Scenes {
		out[i] = scene.VisualDescription
	}
	return out
}

// Clone returns a deep copy so callers can mutate scenes freely.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	c := *s
	c.Scenes = make([]Scene, len(s.Scenes))
	for i, scene := range s.Scenes {
		c.Scenes[i] = scene
		if scene.Lines != nil {
			c.Scenes[i].Lines = append([]string(nil), scene.Lines...)
		}
	}
	return &c
}
