package logging

// Convenience wrappers for the hottest categories. Library code calls these
// instead of Get(...) at every site.

// Store logs at info level to the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs at debug level to the store category.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Bus logs at info level to the bus category.
func Bus(format string, args ...interface{}) { Get(CategoryBus).Info(format, args...) }

// BusDebug logs at debug level to the bus category.
func BusDebug(format string, args ...interface{}) { Get(CategoryBus).Debug(format, args...) }

// Memory logs at info level to the memory category.
func Memory(format string, args ...interface{}) { Get(CategoryMemory).Info(format, args...) }

// MemoryDebug logs at debug level to the memory category.
func MemoryDebug(format string, args ...interface{}) { Get(CategoryMemory).Debug(format, args...) }

// Sim logs at info level to the sim category.
func Sim(format string, args ...interface{}) { Get(CategorySim).Info(format, args...) }

// SimDebug logs at debug level to the sim category.
func SimDebug(format string, args ...interface{}) { Get(CategorySim).Debug(format, args...) }

// Tools logs at info level to the tools category.
func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

// ToolsDebug logs at debug level to the tools category.
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }

// Executor logs at info level to the executor category.
func Executor(format string, args ...interface{}) { Get(CategoryExecutor).Info(format, args...) }

// ExecutorDebug logs at debug level to the executor category.
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debug(format, args...) }

// Chat logs at info level to the chat category.
func Chat(format string, args ...interface{}) { Get(CategoryChat).Info(format, args...) }

// ChatDebug logs at debug level to the chat category.
func ChatDebug(format string, args ...interface{}) { Get(CategoryChat).Debug(format, args...) }

// Embedding logs at info level to the embedding category.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingDebug logs at debug level to the embedding category.
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }

// LLM logs at info level to the llm category.
func LLM(format string, args ...interface{}) { Get(CategoryLLM).Info(format, args...) }

// LLMDebug logs at debug level to the llm category.
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
