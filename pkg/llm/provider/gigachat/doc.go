// Package gigachat 提供 GigaChat 对话补全的 LLM Provider 实现
//
// 本包实现了 [llm.Provider] 接口，并在其上提供面向单条提示词的
// 阻塞调用与回调式流式调用。
//
// # 概述
//
// [Client] 是核心类型：
//
//   - 访问令牌由 core.TokenManager 管理，过期前 60 秒自动刷新，并发调用只触发一次刷新
//   - system 角色在发送前被拒绝（UnsupportedRoleError），不会产生任何网络请求
//   - 同步响应选取第一个 finish_reason 为 "stop" 且角色为 assistant 的 choice
//   - 流式响应按到达顺序拼接每个 delta.content
//
// # 快速开始
//
//	client, err := gigachat.New(&llm.Config{
//	    APIKey: os.Getenv("GIGACHAT_CREDENTIALS"),
//	    Scope:  llm.ScopePersonal,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	text, err := client.Chat(ctx, "Привет!")
//
// # 流式调用
//
// [Client.ChatStreaming] 立即返回，结果通过 [Callbacks] 交付。
// 提供 Executor 可以把回调投递到调用方自己的事件循环：
//
//	done := client.ChatStreaming(ctx, "Расскажи анекдот", gigachat.Callbacks{
//	    OnPartial:  func(delta string) { fmt.Print(delta) },
//	    OnComplete: func(text string) { fmt.Println() },
//	    OnError:    func(kind llm.ErrorType, msg string) { log.Printf("%s: %s", kind, msg) },
//	})
//	<-done
//
// 也可以直接消费事件 channel，并用 [ParseStream] 聚合：
//
//	stream, _ := client.Stream(ctx, messages, nil)
//	result := gigachat.ParseStream(stream)
//
// # 错误处理
//
// 使用 llm.IsAuthError、llm.IsAPIError、llm.IsUnsupportedRoleError、
// llm.IsParseError 区分错误类别。客户端不做任何自动重试。
//
// # 线程安全
//
// [Client] 是线程安全的，可以并发调用 Chat 与 ChatStreaming。
package gigachat
