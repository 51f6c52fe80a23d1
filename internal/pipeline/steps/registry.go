// Package steps provides stage definitions and dependency validation for the
// video pipeline.
package steps

import (
	"fmt"
	"sort"

	"github.com/jonathan/kids-video-pipeline/internal/runstate"
)

// Stage categories.
const (
	CategoryShared   = "shared"
	CategoryLanguage = "language"
	CategoryFinal    = "final"
)

// Stage names. Language stages are recorded in the run log with a
// "_<code>" suffix.
const (
	Analytics      = "analytics"
	Topic          = "topic"
	BaseScript     = "base_script"
	Images         = "images"
	Music          = "music"
	Script         = "script"
	Voiceover      = "voiceover"
	Animation      = "animation"
	Captions       = "captions"
	Video          = "video"
	Metadata       = "metadata"
	Thumbnail      = "thumbnail"
	ABSelection    = "ab_selection"
	Upload         = "upload"
	CaptionsUpload = "captions_upload"
	DBInsert       = "db_insert"
	Playlist       = "playlist"
	Shorts         = "shorts"
	ShortsUpload   = "shorts_upload"
	Instagram      = "instagram"
	Cleanup        = "cleanup"
	SharedCleanup  = "shared_cleanup"
	Summary        = "summary"
	Notify         = "notify"
)

// StepDefinition defines metadata for a pipeline stage
type StepDefinition struct {
	Name     string
	Category string
	// Fatal stages end the run when they fail.
	Fatal        bool
	Dependencies []string
	Optional     []string
}

// StepRegistry holds all stage definitions
var StepRegistry = map[string]StepDefinition{
	Analytics:  {Name: Analytics, Category: CategoryShared},
	Topic:      {Name: Topic, Category: CategoryShared, Fatal: true},
	BaseScript: {Name: BaseScript, Category: CategoryShared, Fatal: true, Dependencies: []string{Topic}},
	Images:     {Name: Images, Category: CategoryShared, Fatal: true, Dependencies: []string{BaseScript}},
	Music:      {Name: Music, Category: CategoryShared, Dependencies: []string{Topic}},

	Script:    {Name: Script, Category: CategoryLanguage},
	Voiceover: {Name: Voiceover, Category: CategoryLanguage, Dependencies: []string{Script}},
	Animation: {Name: Animation, Category: CategoryLanguage, Dependencies: []string{Voiceover}},
	Captions:  {Name: Captions, Category: CategoryLanguage, Dependencies: []string{Voiceover}},
	Video: {
		Name:         Video,
		Category:     CategoryLanguage,
		Dependencies: []string{Voiceover},
		Optional:     []string{Animation, Captions},
	},
	Metadata:    {Name: Metadata, Category: CategoryLanguage, Dependencies: []string{Script}},
	Thumbnail:   {Name: Thumbnail, Category: CategoryLanguage, Dependencies: []string{Metadata}},
	ABSelection: {Name: ABSelection, Category: CategoryLanguage, Dependencies: []string{Metadata}},
	Upload: {
		Name:         Upload,
		Category:     CategoryLanguage,
		Dependencies: []string{Video, Metadata},
		Optional:     []string{Thumbnail, ABSelection},
	},
	CaptionsUpload: {Name: CaptionsUpload, Category: CategoryLanguage, Dependencies: []string{Upload, Captions}},
	DBInsert:       {Name: DBInsert, Category: CategoryLanguage, Dependencies: []string{Upload}},
	Playlist:       {Name: Playlist, Category: CategoryLanguage, Dependencies: []string{DBInsert}},
	Shorts:         {Name: Shorts, Category: CategoryLanguage, Dependencies: []string{Script}, Optional: []string{Voiceover}},
	ShortsUpload:   {Name: ShortsUpload, Category: CategoryLanguage, Dependencies: []string{Shorts, Metadata}},
	Instagram:      {Name: Instagram, Category: CategoryLanguage, Dependencies: []string{Shorts, Metadata}},
	Cleanup:        {Name: Cleanup, Category: CategoryLanguage},

	SharedCleanup: {Name: SharedCleanup, Category: CategoryFinal},
	Summary:       {Name: Summary, Category: CategoryFinal},
	Notify:        {Name: Notify, Category: CategoryFinal, Dependencies: []string{Summary}},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependencies: %v", e.MissingDependencies)
}

// Done reports whether a recorded status satisfies a dependency.
func Done(status string) bool {
	return status == string(runstate.StatusSuccess) || status == string(runstate.StatusSaved)
}

// ValidateDependencies checks that every required dependency of stepName has
// completed in statuses, which maps stage name to recorded status.
func ValidateDependencies(statuses map[string]string, stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !Done(statuses[dep]) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Step: stepName, MissingDependencies: missing}
	}
	return nil
}

// IsFatal reports whether a failure of stepName ends the run.
func IsFatal(stepName string) bool {
	return StepRegistry[stepName].Fatal
}

// ByCategory returns the stage names of one category, sorted.
func ByCategory(category string) []string {
	var names []string
	for name, def := range StepRegistry {
		if def.Category == category {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
