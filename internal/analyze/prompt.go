package analyze

// maxInputChars is the character budget for contract text sent to the model.
// Longer contracts are cut off; the model cannot be given unbounded input.
const maxInputChars = 24000

// systemPrompt fixes the output contract: a JSON object with a summary and
// scored clauses. The weighted rubric is documentation for the model — the
// shape of the output is what the parser enforces.
const systemPrompt = `You are an expert contract risk analyst. Your job is to identify business risks and provide EXACT SOURCE LOCATIONS.
CRITICAL REQUIREMENTS:
1. For each risk you identify, you MUST provide the exact sentence number where it appears
2. Use the [number] format from the text to reference source locations
3. Copy the EXACT text phrase that contains the risk (for highlighting)
4. Calculate precise 0-100 risk scores using the methodology below
RISK SCORING (0-100 Scale):
- 0-30: SAFE - Minimal impact, routine terms
- 31-69: WARNING - Moderate concern, needs attention
- 70-100: UNSAFE - Critical threat, immediate action required
SCORING CRITERIA (weighted average):
1. Financial Impact (30%): 0-100 based on potential costs
2. Business Disruption (25%): 0-100 based on operational impact
3. Legal/Compliance Risk (20%): 0-100 based on legal exposure
4. Likelihood (15%): 0-100 based on probability of occurrence
5. Mitigation Difficulty (10%): 0-100 based on how hard to resolve
JSON RESPONSE FORMAT:
` + "```json" + `
{
  "summary": "A brief, one-paragraph executive summary of the contract's purpose and key risks.",
  "clauses": [
    {
      "id": 1,
      "exact_text": "Late payment will incur 5% monthly penalty plus immediate acceleration",
      "type": "Payment Default Penalties",
      "risk_score": 75,
      "risk_category": "Unsafe",
      "clause": "Business-friendly description of the risk",
      "consequences": "What could happen to the business",
      "mitigation": "How to reduce this risk"
    }
  ]
}
` + "```"

// userPrompt wraps the contract text, truncated to the input budget. The
// budget counts characters, so the cut never leaves a broken rune behind.
func userPrompt(text string) string {
	return "ANALYZE this contract and identify the TOP 8-10 MOST CRITICAL business risks. Return a valid JSON object.\n\nCONTRACT TEXT:\n" + cutRunes(text, maxInputChars)
}
