package memorysvc

import (
	"context"

	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/tokencount"
)

// profileRegenerationTemperature keeps regeneration output stable and
// non-creative, matching the system prompt's "never invent" rule.
const profileRegenerationTemperature = 0.2

// RegenerateProfile implements spec §4.7 regenerate_profile(): it loads the
// current profile, unincorporated contributions, and standing user edits,
// asks the core model to rewrite the profile document, and persists the
// result as a new version with contributions marked incorporated.
func (s *Service) RegenerateProfile(ctx context.Context) error {
	current, err := s.st.CurrentProfile(ctx)
	if err != nil {
		return err
	}
	contributions, err := s.st.ActiveUnincorporatedContributions(ctx)
	if err != nil {
		return err
	}
	edits, err := s.st.ActiveUserEdits(ctx)
	if err != nil {
		return err
	}
	if len(contributions) == 0 {
		return nil
	}

	prompt := buildProfileRegenerationPrompt(current, contributions, edits)
	resp, err := s.callModel(ctx, modelservice.Request{
		SystemPrompt: profileSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  profileRegenerationTemperature,
		MaxTokens:    s.cfg.ProfileMaxTokens,
	})
	if err != nil {
		return err
	}
	content := stripPreamble(resp.Content)

	ids := make([]string, len(contributions))
	for i, c := range contributions {
		ids[i] = c.ID
	}
	tokenCount := tokencount.Count(content, s.cfg.CoreModelName)
	_, err = s.st.InsertProfileVersion(ctx, content, s.cfg.CoreModelName, tokenCount, ids)
	return err
}

// regenerateProfileIfDue checks the profile-regeneration threshold
// (spec §4.7 step 10) and, once the unincorporated-contribution count
// reaches it, detaches a regeneration task so the
// triggering turn is never blocked on the model call. Guarded by
// profileRegenRunning so overlapping turns don't pile up concurrent
// regenerations.
func (s *Service) regenerateProfileIfDue(ctx context.Context) {
	contributions, err := s.st.ActiveUnincorporatedContributions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to check profile regeneration threshold")
		return
	}
	if len(contributions) < s.cfg.ProfileRegenerateThreshold {
		return
	}

	s.mu.Lock()
	if s.profileRegenRunning {
		s.mu.Unlock()
		return
	}
	s.profileRegenRunning = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.profileRegenRunning = false
			s.mu.Unlock()
		}()
		if err := s.RegenerateProfile(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("detached profile regeneration failed")
		}
	}()
}
