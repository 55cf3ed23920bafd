package script

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/llm/mocks"
	"github.com/TobiSchelling/saintcast/internal/structure"
)

var stNicholasDay = time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC)

func fixedShow() config.Show {
	return config.Show{
		Name:    "saints-and-seasons",
		Prompts: config.Prompts{Script: `Write the script for {date}. Reply like {"lines": []}.`},
		Voices: config.Voices{
			Mode:          config.VoiceModeFixed,
			FixedVoiceMap: map[string]string{"John": "voice-john", "Maria": "voice-maria"},
		},
	}
}

func castShow() config.Show {
	return config.Show{
		Name:    "saintly-adventures",
		Prompts: config.Prompts{Script: "Tell a story for {date}."},
		Voices: config.Voices{
			Mode:            config.VoiceModeAIAssigned,
			AllowedVoiceIDs: []string{"v1", "v2", "v3"},
		},
	}
}

func str(s string) *string { return &s }

func respond[T llm.Schema](fill func(T)) func(context.Context, []llm.Message, llm.Schema) error {
	return func(_ context.Context, _ []llm.Message, target llm.Schema) error {
		fill(target.(T))
		return nil
	}
}

func TestGenerateFixedScript(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)

	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&FixedScript{})).
		DoAndReturn(respond(func(s *FixedScript) {
			s.Lines = []FixedLine{
				{PodcastHostName: "Maria", Content: "[warmly] Welcome!", SystemInstructions: str("warm")},
				{PodcastHostName: "john ", Content: "Today is Saint Nicholas."},
				{PodcastHostName: "Maria", Content: "Bye."},
			}
		}))

	s, err := New(ai, fixedShow(), nil).Generate(context.Background(), nil, stNicholasDay, nil)
	require.NoError(t, err)

	require.Len(t, s.Lines, 3)
	assert.Equal(t, Line{Speaker: "Maria", Text: "[warmly] Welcome!", Direction: "warm"}, s.Lines[0])
	assert.Equal(t, "john", s.Lines[1].Speaker)
	assert.Equal(t, map[string]string{"Maria": "voice-maria", "john": "voice-john"}, s.Voices)
	assert.Equal(t, []string{"Maria", "john"}, s.Speakers())
	assert.Empty(t, s.Title)
}

func TestGenerateFixedScriptUnknownSpeaker(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)
	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(respond(func(s *FixedScript) {
			s.Lines = []FixedLine{
				{PodcastHostName: "Maria", Content: "Hi"},
				{PodcastHostName: "Narrator", Content: "Once upon a time"},
			}
		}))

	_, err := New(ai, fixedShow(), nil).Generate(context.Background(), nil, stNicholasDay, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrSchemaViolation)
	assert.Contains(t, err.Error(), "Narrator")
}

func TestGenerateMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)

	feasts := []structure.FeastSummary{{Title: "Saint Nicholas"}}
	bios := []map[string]any{{"name": "Saint Nicholas"}}

	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llm.Message, target llm.Schema) error {
			require.Len(t, msgs, 2)
			assert.Equal(t, writerRole, msgs[0].Content)

			prompt, data, ok := strings.Cut(msgs[1].Content, "\n\nDATA:\n")
			require.True(t, ok)
			assert.Equal(t, `Write the script for December 06, 2025. Reply like {"lines": []}.`, prompt)

			var payload map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(data), &payload))
			assert.Contains(t, string(payload["structured_summaries"]), `"Themes":[]`)
			assert.JSONEq(t, `[{"name":"Saint Nicholas"}]`, string(payload["original_biography_data"]))

			target.(*FixedScript).Lines = []FixedLine{{PodcastHostName: "John", Content: "Hi"}}
			return nil
		})

	_, err := New(ai, fixedShow(), nil).Generate(context.Background(), feasts, stNicholasDay, bios)
	require.NoError(t, err)
}

func TestGenerateOmitsBiographiesWhenAbsent(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)
	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llm.Message, target llm.Schema) error {
			assert.NotContains(t, msgs[1].Content, "original_biography_data")
			assert.Contains(t, msgs[1].Content, `"structured_summaries":[]`)
			target.(*FixedScript).Lines = []FixedLine{{PodcastHostName: "John", Content: "Hi"}}
			return nil
		})

	_, err := New(ai, fixedShow(), nil).Generate(context.Background(), nil, stNicholasDay, nil)
	require.NoError(t, err)
}

func TestGenerateCastScript(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)
	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&CastScript{})).
		DoAndReturn(respond(func(s *CastScript) {
			s.Title = " The Secret Gifts "
			s.SaintName = "Saint Nicholas"
			s.Characters = []string{"Narrator", "Nicholas"}
			s.ScriptLines = []CastLine{
				{Character: "Narrator", Text: "Long ago in Myra..."},
				{Character: "nicholas", Text: "[whispering] Shh."},
			}
			s.Voices = []VoiceAssignment{
				{Character: "NARRATOR", VoiceID: "v1"},
				{Character: "Nicholas", VoiceID: "v2"},
			}
		}))

	s, err := New(ai, castShow(), nil).Generate(context.Background(), nil, stNicholasDay, nil)
	require.NoError(t, err)
	assert.Equal(t, "The Secret Gifts", s.Title)
	assert.Equal(t, map[string]string{"Narrator": "v1", "nicholas": "v2"}, s.Voices)
	for _, l := range s.Lines {
		assert.NotEmpty(t, s.Voices[l.Speaker], "speaker %q has no voice", l.Speaker)
	}
}

func TestGenerateCastScriptRejectsUnsupportedVoice(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)
	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(respond(func(s *CastScript) {
			s.Characters = []string{"Narrator"}
			s.ScriptLines = []CastLine{{Character: "Narrator", Text: "Hi"}}
			s.Voices = []VoiceAssignment{{Character: "Narrator", VoiceID: "rogue"}}
		}))

	_, err := New(ai, castShow(), nil).Generate(context.Background(), nil, stNicholasDay, nil)
	assert.ErrorIs(t, err, llm.ErrSchemaViolation)
	assert.Contains(t, err.Error(), "rogue")
}

func TestGenerateCastScriptRejectsConflictingVoices(t *testing.T) {
	ctrl := gomock.NewController(t)
	ai := mocks.NewMockProvider(ctrl)
	ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(respond(func(s *CastScript) {
			s.Characters = []string{"Narrator"}
			s.ScriptLines = []CastLine{{Character: "Narrator", Text: "Hi"}}
			s.Voices = []VoiceAssignment{{Character: "Narrator", VoiceID: "v1"}, {Character: "narrator", VoiceID: ""}}
		}))

	show := castShow()
	show.Voices.AllowedVoiceIDs = nil
	s, err := New(ai, show, nil).Generate(context.Background(), nil, stNicholasDay, nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, llm.ErrSchemaViolation)
	assert.Equal(t, "schema_violation", llm.Kind(err))
}

func TestCastScriptValidate(t *testing.T) {
	tests := []struct {
		name    string
		script  CastScript
		wantErr string
	}{
		{
			name: "valid",
			script: CastScript{
				Characters:  []string{"A", "B"},
				ScriptLines: []CastLine{{Character: " a ", Text: "x"}, {Character: "B", Text: "y"}},
				Voices:      []VoiceAssignment{{Character: "a", VoiceID: "1"}, {Character: "b", VoiceID: "2"}},
			},
		},
		{
			name: "missing voice",
			script: CastScript{
				Characters:  []string{"A", "B"},
				ScriptLines: []CastLine{{Character: "A", Text: "x"}},
				Voices:      []VoiceAssignment{{Character: "A", VoiceID: "1"}},
			},
			wantErr: "missing voice assignments for characters: B",
		},
		{
			name: "empty voice id",
			script: CastScript{
				Characters:  []string{"A"},
				ScriptLines: []CastLine{{Character: "A", Text: "x"}},
				Voices:      []VoiceAssignment{{Character: "A", VoiceID: " "}},
			},
			wantErr: "missing voice assignments for characters: A",
		},
		{
			name: "conflicting voice ids",
			script: CastScript{
				Characters:  []string{"Narrator"},
				ScriptLines: []CastLine{{Character: "Narrator", Text: "x"}},
				Voices:      []VoiceAssignment{{Character: "Narrator", VoiceID: "v1"}, {Character: "narrator", VoiceID: ""}},
			},
			wantErr: "conflicting voice assignments for characters: narrator",
		},
		{
			name: "repeated identical voice",
			script: CastScript{
				Characters:  []string{"Narrator"},
				ScriptLines: []CastLine{{Character: "Narrator", Text: "x"}},
				Voices:      []VoiceAssignment{{Character: "Narrator", VoiceID: "v1"}, {Character: " narrator", VoiceID: "v1 "}},
			},
		},
		{
			name: "undeclared speaker",
			script: CastScript{
				Characters:  []string{"A"},
				ScriptLines: []CastLine{{Character: "A", Text: "x"}, {Character: "Ghost", Text: "boo"}},
				Voices:      []VoiceAssignment{{Character: "A", VoiceID: "1"}},
			},
			wantErr: "script_lines reference undeclared characters: Ghost",
		},
		{
			name:    "no lines",
			script:  CastScript{Characters: []string{"A"}},
			wantErr: "script_lines is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.script.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestFixedScriptValidate(t *testing.T) {
	assert.Error(t, (&FixedScript{}).Validate())
	assert.Error(t, (&FixedScript{Lines: []FixedLine{{Content: "x"}}}).Validate())
	assert.NoError(t, (&FixedScript{Lines: []FixedLine{{PodcastHostName: "John"}}}).Validate())
}
