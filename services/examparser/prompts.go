package examparser

const supervisorSystemPrompt = `You are an exam paper structure analyst. Your job is to find question boundaries and output a split plan. You MUST output valid JSON.`

const supervisorPromptTemplate = "You are a professional exam paper analysis assistant. Your task is to **identify question boundaries** and propose a chunked split plan.\n\n" +
	"**Input text**:\n```\n%s\n```\n\n" +
	`**Requirements**:
1. Read the whole paper and identify how the questions are distributed
2. Split the paper at question boundaries into parts of roughly %d questions each
3. For each part provide:
   - start_question: the number of the first question in the part (integer)
   - start_marker: the opening text of that first question, copied verbatim (about 30-50 characters, enough to locate it uniquely)

**Output format (JSON)**:
{
  "total_questions": 70,
  "splits": [
    {"start_question": 1, "start_marker": "Question 1: What is one of the main disadvantages..."},
    {"start_question": 21, "start_marker": "Question 21: Which of the following scenarios..."}
  ]
}

**Notes**:
- start_marker must be an exact fragment of the original text, including the question number if the text shows one
- The splits must cover every question
- Only give the start of each part, never an end marker
`

const workerSystemPrompt = `You are a professional exam paper analysis assistant who extracts structured question data from unstructured text. You MUST output valid JSON.`

const workerPromptTemplate = "Analyse the exam paper text below and extract every question.\n\n" +
	"**Input text**:\n```\n%s\n```\n\n" +
	`**Requirements**:
1. Identify every question in the text
2. For each question extract:
   - index: the question number (integer, exactly as numbered in the text)
   - type: one of choice, blank, qa, calculation, proof, other
   - content: the question body (when the question has sub-questions, only the shared stem or material).
     IMPORTANT: image links such as ` + "`![...](images/...)`" + ` must be kept intact, never removed
   - options: for choice questions the list of options (e.g. ["A. xxx", "B. xxx"]), otherwise an empty list
   - score: the marks if the text states them, otherwise null
   - sub_questions: nested sub-questions with the same shape, otherwise an empty list

**Key rules**:
- Images: keep every Markdown image ` + "`![...](...)`" + ` verbatim
- Math: keep LaTeX markup verbatim

**Output format (JSON object)**:
{
  "questions": [
    {
      "index": 1,
      "type": "choice",
      "content": "Which of the following...",
      "options": ["A. option one", "B. option two", "C. option three", "D. option four"],
      "score": null,
      "sub_questions": []
    }
  ]
}

**Notes**:
- Keep the original wording, do not rewrite or summarise questions
- index must be the number printed in the text, never renumber
- The output must be a valid JSON object
`
