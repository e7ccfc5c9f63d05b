package nodes

import "strings"

// ragPromptTemplate 生成阶段使用的提示词模板，{context} 和 {query} 会被替换
const ragPromptTemplate = `You are a helpful AI assistant. Answer the user's question based on the provided context from the knowledge base.

Context from Knowledge Base:
{context}

User Question:
{query}

Instructions:
1. Answer the question based primarily on the provided context
2. If the context doesn't contain enough information to fully answer the question, acknowledge this limitation
3. Be concise and direct in your response
4. If you reference specific information from the context, you can mention it came from the knowledge base
5. Do not make up information that is not in the context

Answer:`

// BuildPrompt 将检索上下文和用户问题填入模板
func BuildPrompt(query, kbContext string) string {
	r := strings.NewReplacer("{context}", kbContext, "{query}", query)
	return r.Replace(ragPromptTemplate)
}
