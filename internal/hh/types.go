package hh

import (
	"regexp"
	"strings"
)

// Posting is one search result.
type Posting struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HasTest bool   `json:"has_test"`
	URL     string `json:"alternate_url"`
}

// PostingDetail is the full posting.
type PostingDetail struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	HasTest     bool   `json:"has_test"`
	Employer    struct {
		Name string `json:"name"`
	} `json:"employer"`
	KeySkills []struct {
		Name string `json:"name"`
	} `json:"key_skills"`
}

// Text renders the posting as plain text for the letter generator.
func (p *PostingDetail) Text() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Employer.Name != "" {
		b.WriteString("\nEmployer: ")
		b.WriteString(p.Employer.Name)
	}
	if len(p.KeySkills) > 0 {
		skills := make([]string, 0, len(p.KeySkills))
		for _, s := range p.KeySkills {
			skills = append(skills, s.Name)
		}
		b.WriteString("\nKey skills: ")
		b.WriteString(strings.Join(skills, ", "))
	}
	if d := stripTags(p.Description); d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	return b.String()
}

// ResumeDetail is the candidate's résumé.
type ResumeDetail struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	SkillSet   []string `json:"skill_set"`
	Skills     string   `json:"skills"`
	Experience []struct {
		Company     string `json:"company"`
		Position    string `json:"position"`
		Description string `json:"description"`
	} `json:"experience"`
}

// Text renders the résumé as plain text for the letter generator.
func (r *ResumeDetail) Text() string {
	var b strings.Builder
	b.WriteString(r.Title)
	if name := strings.TrimSpace(r.FirstName + " " + r.LastName); name != "" {
		b.WriteString("\nCandidate: ")
		b.WriteString(name)
	}
	if len(r.SkillSet) > 0 {
		b.WriteString("\nSkills: ")
		b.WriteString(strings.Join(r.SkillSet, ", "))
	}
	if r.Skills != "" {
		b.WriteString("\nAbout: ")
		b.WriteString(stripTags(r.Skills))
	}
	for _, e := range r.Experience {
		b.WriteString("\n- ")
		b.WriteString(e.Position)
		if e.Company != "" {
			b.WriteString(" at ")
			b.WriteString(e.Company)
		}
		if e.Description != "" {
			b.WriteString(": ")
			b.WriteString(stripTags(e.Description))
		}
	}
	return b.String()
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(tagRe.ReplaceAllString(s, " ")), " "))
}
