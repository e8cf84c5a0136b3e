package council

import (
	"fmt"
	"strings"
)

// rankingSystemPrompt è la persona neutra usata per la fase di ranking:
// il ranker valuta risposte anonime, non impersona nessuno
const rankingSystemPrompt = `You are an impartial evaluator. You judge answers on accuracy, depth, clarity and usefulness. You are strict but fair.`

// chairmanSystemPrompt è la persona del chairman per la sintesi finale
const chairmanSystemPrompt = `You are the chairman of a council of advisors. Your role is to synthesize the council's deliberation into a single, definitive answer for the user. Weigh the advisors' answers according to the council's ranking, reconcile disagreements, and answer in your own voice. Do not mention the deliberation process.`

// buildRankingPrompt costruisce il prompt di ranking per la fase 2.
// Riceve solo materiale anonimizzato: la mappa label->advisor non
// attraversa mai questa funzione.
func buildRankingPrompt(question string, labels []string, texts map[string]string) string {
	var b strings.Builder

	b.WriteString("A user asked the following question:\n\n")
	b.WriteString(question)
	b.WriteString("\n\nSeveral anonymous experts produced the answers below.\n\n")

	for _, label := range labels {
		fmt.Fprintf(&b, "%s:\n%s\n\n", label, texts[label])
	}

	b.WriteString("Evaluate every answer, briefly explaining the strengths and weaknesses of each. ")
	b.WriteString("Then conclude with your ranking from best to worst, in exactly this format:\n\n")
	b.WriteString("FINAL RANKING:\n")
	for i := range labels {
		fmt.Fprintf(&b, "%d. Response X\n", i+1)
	}
	b.WriteString("\nwhere X is the letter of an answer. Rank every answer exactly once.")

	return b.String()
}

// buildSynthesisPrompt costruisce il prompt del chairman per la fase 3.
// Il chairman vede il materiale de-anonimizzato: risposte attribuite,
// ordine consensuale e motivazioni dei ranking.
func buildSynthesisPrompt(question string, stage1 []Stage1Response, stage2 []RankingEntry, aggregate []AggregatedRank, lm *labelMap) string {
	var b strings.Builder

	b.WriteString("A user asked the council the following question:\n\n")
	b.WriteString(question)
	b.WriteString("\n\nThe advisors answered:\n\n")

	for _, r := range stage1 {
		if !r.OK() {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", r.AdvisorName, r.Response)
	}

	b.WriteString("The council ranked the answers as follows, best first:\n\n")
	for i, agg := range aggregate {
		name := agg.AdvisorName
		if name == "" {
			if a, ok := lm.advisorFor(agg.Label); ok {
				name = a.Name
			}
		}
		fmt.Fprintf(&b, "%d. %s (score %d)\n", i+1, name, agg.Score)
	}

	var reasonings []string
	for _, e := range stage2 {
		if e.OK() && e.Ranking != "" {
			reasonings = append(reasonings, fmt.Sprintf("%s's evaluation:\n%s", e.AdvisorName, e.Ranking))
		}
	}
	if len(reasonings) > 0 {
		b.WriteString("\nThe advisors motivated their rankings:\n\n")
		b.WriteString(strings.Join(reasonings, "\n\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nSynthesize the council's deliberation into the single best possible answer to the user's question.")

	return b.String()
}

// buildTitlePrompt costruisce il prompt per il titolo della conversazione
func buildTitlePrompt(firstMessage string) string {
	return fmt.Sprintf(
		"Generate a short title (at most 6 words) for a conversation that starts with the following message. Reply with the title only, no quotes, no punctuation at the end.\n\nMessage: %s",
		firstMessage,
	)
}
