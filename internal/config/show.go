package config

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

const (
	VoiceModeFixed      = "fixed"
	VoiceModeAIAssigned = "ai_assigned"
)

//go:embed presets/*/*.txt
var presetFS embed.FS

// Show configures one podcast generator: which prompts it uses, how voices
// are resolved, which music it wraps the dialogue in, and which Podcast row its
// episodes belong to.
type Show struct {
	Name    string     `yaml:"name"`
	AI      *AI        `yaml:"ai,omitempty"`
	Prompts Prompts    `yaml:"prompts"`
	Voices  Voices     `yaml:"voices"`
	Audio   ShowAudio  `yaml:"audio"`
	Output  ShowOutput `yaml:"output"`
	Linkage Linkage    `yaml:"linkage"`
}

// Prompts holds the three prompt templates. Empty fields are filled from the
// named preset. Script may contain a {date} token.
type Prompts struct {
	Preset          string `yaml:"preset"`
	ResearchQueries string `yaml:"research_queries"`
	StructuredBio   string `yaml:"structured_bio"`
	Script          string `yaml:"script"`
}

type Voices struct {
	Mode            string            `yaml:"mode"`
	FixedVoiceMap   map[string]string `yaml:"fixed_voice_map"`
	AllowedVoiceIDs []string          `yaml:"allowed_voice_ids"`
}

// ShowAudio names music files under <media root>/podcast_assets/.
type ShowAudio struct {
	IntroFilename string `yaml:"intro_filename"`
	OutroFilename string `yaml:"outro_filename"`
}

type ShowOutput struct {
	FilenamePrefix string `yaml:"filename_prefix"`
}

// Linkage identifies the Podcast a show publishes into. Resolution order is
// uuid, then slug, then the newest catholic podcast.
type Linkage struct {
	PodcastUUID string `yaml:"podcast_uuid"`
	PodcastSlug string `yaml:"podcast_slug"`
}

// AIAssigned reports whether the script stage lets the model cast voices.
func (s Show) AIAssigned() bool {
	return s.Voices.Mode == VoiceModeAIAssigned
}

var defaultAdultVoices = map[string]string{
	"John":  "gs0tAILXbY5DNrJrsM6F",
	"Maria": "H1GhCI6GEKiSXZcwmUkc",
}

var defaultKidsVoiceIDs = []string{
	"7tRwuZTD1EWi6nydVerp", // intro blurb narrator
	"cfc7wVYq4gw4OpcEEAom", // story narrator
	"vfaqCOvlrKi4Zp7C2IAm",
	"yjJ45q8TVCrtMhEKurxY",
	"oR4uRy4fHDUGGISL0Rev",
	"PPzYpIqttlTYA83688JI",
	"ZF6FPAbjXT4488VcRRnw",
	"y2Y5MeVPm6ZQXK64WUui",
	"Wu86LpENEn32PwtU2hv1",
	"FUfBrNit0NNZAwb58KWH",
	"EkK5I93UQWFDigLMpZcX",
	"qBDvhofpxp92JgXJxDjB",
	"c7XGL37TTXR5zdorzHX9",
	"3vk47KpWZzIrWkdEhumS",
	"b3tuFWghbXYRa9Cs9MJf",
	"0TfZ4rvne3QI7UjDxVkM",
}

func (s *Show) applyDefaults() {
	if s.Voices.Mode == "" {
		s.Voices.Mode = VoiceModeFixed
	}
	if s.Prompts.Preset == "" {
		if s.AIAssigned() {
			s.Prompts.Preset = "saintly_adventures"
		} else {
			s.Prompts.Preset = "saints_and_seasons"
		}
	}
	if s.Output.FilenamePrefix == "" {
		s.Output.FilenamePrefix = "saints_and_seasons"
	}

	switch s.Prompts.Preset {
	case "saints_and_seasons":
		if !s.AIAssigned() && len(s.Voices.FixedVoiceMap) == 0 {
			s.Voices.FixedVoiceMap = make(map[string]string, len(defaultAdultVoices))
			for k, v := range defaultAdultVoices {
				s.Voices.FixedVoiceMap[k] = v
			}
		}
	case "saintly_adventures":
		if s.AIAssigned() && len(s.Voices.AllowedVoiceIDs) == 0 {
			s.Voices.AllowedVoiceIDs = append([]string(nil), defaultKidsVoiceIDs...)
		}
	}

	if s.Prompts.ResearchQueries == "" {
		s.Prompts.ResearchQueries = presetText(s.Prompts.Preset, "research_queries")
	}
	if s.Prompts.StructuredBio == "" {
		s.Prompts.StructuredBio = presetText(s.Prompts.Preset, "structured_bio")
	}
	if s.Prompts.Script == "" {
		s.Prompts.Script = presetText(s.Prompts.Preset, "script")
	}
}

func (s Show) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Voices.Mode {
	case VoiceModeFixed:
		if len(s.Voices.FixedVoiceMap) == 0 {
			return fmt.Errorf("voices.fixed_voice_map is required in %q mode", VoiceModeFixed)
		}
	case VoiceModeAIAssigned:
	default:
		return fmt.Errorf("unsupported voices.mode %q", s.Voices.Mode)
	}
	if s.Prompts.ResearchQueries == "" || s.Prompts.StructuredBio == "" || s.Prompts.Script == "" {
		return fmt.Errorf("unknown prompt preset %q and no inline prompts", s.Prompts.Preset)
	}
	return nil
}

// Presets lists the built-in prompt presets.
func Presets() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func presetText(preset, name string) string {
	data, err := presetFS.ReadFile(path.Join("presets", preset, name+".txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
