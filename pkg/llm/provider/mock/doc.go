// Package mock 提供本地模拟的 GigaChat 服务
//
// 基于 gin 实现令牌端点与对话端点，用于测试和开发场景，
// 无需真实凭据即可验证客户端的令牌刷新、同步与流式调用。
//
// # 快速开始
//
//	srv := mock.NewServer()
//	defer srv.Close()
//
//	client, err := gigachat.New(srv.ClientConfig("test-key"))
//	text, err := client.Chat(ctx, "Hi")
//
// # 场景
//
// 每次对话请求消耗场景的一轮，场景结束后返回固定文本：
//
//	cfg := &mock.Config{
//	    Scenarios: []mock.Scenario{{
//	        Name: "booking",
//	        Turns: []mock.Turn{
//	            {User: "订餐", Assistant: "几位？"},
//	            {User: "3位", Assistant: "预订完成！", Chunks: []string{"预订", "完成！"}},
//	        },
//	    }},
//	}
//	srv := mock.NewServer(mock.WithConfig(cfg), mock.WithScenario("booking"))
//
// 也可以通过请求头 [ScenarioHeader] 按请求选择场景。
//
// # 模板语法
//
// 响应文本支持 Go 模板：
//
//   - {{.LastUserMessage}}: 最后一条 user 消息
//   - {{.MessageCount}}: 消息数量
//   - {{env "VAR" "fallback"}}: 环境变量
//
// # 调用记录
//
// [Server.TokenCalls] 与 [Server.ChatCalls] 返回收到的请求，便于断言请求头与请求体。
package mock
